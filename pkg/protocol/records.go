package protocol

import (
	"encoding/binary"
	"fmt"
)

// Subscriber record field offsets
const (
	SubscriberOffsetActive      = 0   // 1 byte
	SubscriberOffsetExpired     = 1   // 1 byte
	SubscriberOffsetAdminStatus = 2   // 1 byte
	SubscriberOffsetName        = 3   // 64 bytes
	SubscriberOffsetAddress     = 67  // 64 bytes
	SubscriberOffsetPhone       = 131 // 32 bytes
	SubscriberOffsetDescription = 163 // 64 bytes
	SubscriberOffsetExpiry      = 227 // 4 bytes: u16 year, u8 month, u8 day
	SubscriberOffsetMask        = 231 // 16 bytes
	SubscriberRecordSize        = 247
)

// Package record field offsets
const (
	PackageOffsetName = 0  // 19 bytes
	PackageOffsetFlag = 19 // 1 byte
	PackageRecordSize = 20
)

// Log record field offsets
const (
	LogOffsetDate       = 0  // 4 bytes
	LogOffsetHour       = 4  // 1 byte
	LogOffsetMinute     = 5  // 1 byte
	LogOffsetSecond     = 6  // 1 byte
	LogOffsetLevel      = 7  // 1 byte
	LogOffsetSubscriber = 8  // 4 bytes
	LogOffsetMessage    = 12 // 52 bytes
	LogRecordSize       = 64
)

// EPG record field offsets
const (
	EPGOffsetChannel     = 0  // 2 bytes
	EPGOffsetDate        = 2  // 4 bytes
	EPGOffsetHour        = 6  // 1 byte
	EPGOffsetMinute      = 7  // 1 byte
	EPGOffsetDuration    = 8  // 2 bytes, minutes
	EPGOffsetTitle       = 10 // 64 bytes
	EPGOffsetDescription = 74 // 128 bytes
	EPGRecordSize        = 202
)

// AdminStatus is the administrative access state stored on a subscriber
type AdminStatus uint8

const (
	AdminInactive AdminStatus = 0 // never decodes
	AdminActive   AdminStatus = 1 // always decodes
	AdminByExpiry AdminStatus = 2 // decodes until the expiry date
)

func (s AdminStatus) String() string {
	switch s {
	case AdminInactive:
		return "inactive"
	case AdminActive:
		return "active"
	case AdminByExpiry:
		return "by-expiry"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// Record is a fixed-width wire view of one row of a DataKind table
type Record interface {
	Kind() DataKind
	encode(dst []byte)
	decode(src []byte)
}

type layout struct {
	width int
	new   func() Record
}

var layouts = map[DataKind]layout{
	KindPackages:    {width: PackageRecordSize, new: func() Record { return &Package{} }},
	KindSubscribers: {width: SubscriberRecordSize, new: func() Record { return &Subscriber{} }},
	KindLog:         {width: LogRecordSize, new: func() Record { return &LogEntry{} }},
	KindEPG:         {width: EPGRecordSize, new: func() Record { return &EPGEvent{} }},
}

// RecordWidth returns the fixed record size of kind
func RecordWidth(kind DataKind) (int, error) {
	l, ok := layouts[kind]
	if !ok {
		return 0, validationError("record width", fmt.Errorf("%w: %d", ErrUnknownKind, uint8(kind)))
	}
	return l.width, nil
}

// EncodeRecord produces the exact fixed-width layout of r
func EncodeRecord(kind DataKind, r Record) ([]byte, error) {
	l, ok := layouts[kind]
	if !ok {
		return nil, validationError("encode record", fmt.Errorf("%w: %d", ErrUnknownKind, uint8(kind)))
	}
	if r == nil || r.Kind() != kind {
		return nil, validationError("encode record", fmt.Errorf("%w: record is not %s", ErrUnknownKind, kind))
	}
	data := make([]byte, l.width)
	r.encode(data)
	return data, nil
}

// DecodeRecords splits data into the records for ids from..to inclusive.
// The payload must hold exactly one record per requested id.
func DecodeRecords(kind DataKind, data []byte, from, to uint32) ([]Record, error) {
	l, ok := layouts[kind]
	if !ok {
		return nil, validationError("decode records", fmt.Errorf("%w: %d", ErrUnknownKind, uint8(kind)))
	}
	if to < from {
		return nil, validationError("decode records", fmt.Errorf("%w: %d..%d", ErrBadRange, from, to))
	}
	count := uint64(to-from) + 1
	if uint64(len(data)) != count*uint64(l.width) {
		return nil, fmt.Errorf("%w: %d bytes for %d %s records of %d bytes",
			ErrLengthMismatch, len(data), count, kind, l.width)
	}

	records := make([]Record, 0, count)
	for off := 0; off < len(data); off += l.width {
		r := l.new()
		r.decode(data[off : off+l.width])
		records = append(records, r)
	}
	return records, nil
}

// Subscriber is a smart-card account on the head-end
type Subscriber struct {
	Active      bool
	Expired     bool
	AdminStatus AdminStatus
	Name        string // 64 bytes
	Address     string // 64 bytes
	Phone       string // 32 bytes
	Description string // 64 bytes
	Expiry      Date
	Mask        Mask
}

func (s *Subscriber) Kind() DataKind { return KindSubscribers }

func (s *Subscriber) encode(dst []byte) {
	putBool(dst[SubscriberOffsetActive:], s.Active)
	putBool(dst[SubscriberOffsetExpired:], s.Expired)
	dst[SubscriberOffsetAdminStatus] = byte(s.AdminStatus)
	putText(dst[SubscriberOffsetName:SubscriberOffsetAddress], s.Name)
	putText(dst[SubscriberOffsetAddress:SubscriberOffsetPhone], s.Address)
	putText(dst[SubscriberOffsetPhone:SubscriberOffsetDescription], s.Phone)
	putText(dst[SubscriberOffsetDescription:SubscriberOffsetExpiry], s.Description)
	putDate(dst[SubscriberOffsetExpiry:SubscriberOffsetMask], s.Expiry)
	copy(dst[SubscriberOffsetMask:SubscriberRecordSize], s.Mask[:])
}

func (s *Subscriber) decode(src []byte) {
	s.Active = src[SubscriberOffsetActive] != 0
	s.Expired = src[SubscriberOffsetExpired] != 0
	s.AdminStatus = AdminStatus(src[SubscriberOffsetAdminStatus])
	s.Name = getText(src[SubscriberOffsetName:SubscriberOffsetAddress])
	s.Address = getText(src[SubscriberOffsetAddress:SubscriberOffsetPhone])
	s.Phone = getText(src[SubscriberOffsetPhone:SubscriberOffsetDescription])
	s.Description = getText(src[SubscriberOffsetDescription:SubscriberOffsetExpiry])
	s.Expiry = getDate(src[SubscriberOffsetExpiry:SubscriberOffsetMask])
	copy(s.Mask[:], src[SubscriberOffsetMask:SubscriberRecordSize])
}

// Package is a channel package slot
type Package struct {
	Name string // 19 bytes
	Flag uint8
}

func (p *Package) Kind() DataKind { return KindPackages }

func (p *Package) encode(dst []byte) {
	putText(dst[PackageOffsetName:PackageOffsetFlag], p.Name)
	dst[PackageOffsetFlag] = p.Flag
}

func (p *Package) decode(src []byte) {
	p.Name = getText(src[PackageOffsetName:PackageOffsetFlag])
	p.Flag = src[PackageOffsetFlag]
}

// LogEntry is one head-end event log line
type LogEntry struct {
	Date         Date
	Hour         uint8
	Minute       uint8
	Second       uint8
	Level        uint8
	SubscriberID uint32
	Message      string // 52 bytes
}

func (e *LogEntry) Kind() DataKind { return KindLog }

func (e *LogEntry) encode(dst []byte) {
	putDate(dst[LogOffsetDate:LogOffsetHour], e.Date)
	dst[LogOffsetHour] = e.Hour
	dst[LogOffsetMinute] = e.Minute
	dst[LogOffsetSecond] = e.Second
	dst[LogOffsetLevel] = e.Level
	binary.LittleEndian.PutUint32(dst[LogOffsetSubscriber:LogOffsetMessage], e.SubscriberID)
	putText(dst[LogOffsetMessage:LogRecordSize], e.Message)
}

func (e *LogEntry) decode(src []byte) {
	e.Date = getDate(src[LogOffsetDate:LogOffsetHour])
	e.Hour = src[LogOffsetHour]
	e.Minute = src[LogOffsetMinute]
	e.Second = src[LogOffsetSecond]
	e.Level = src[LogOffsetLevel]
	e.SubscriberID = binary.LittleEndian.Uint32(src[LogOffsetSubscriber:LogOffsetMessage])
	e.Message = getText(src[LogOffsetMessage:LogRecordSize])
}

// EPGEvent is one programme guide entry
type EPGEvent struct {
	Channel     uint16
	Date        Date
	Hour        uint8
	Minute      uint8
	Duration    uint16 // minutes
	Title       string // 64 bytes
	Description string // 128 bytes
}

func (e *EPGEvent) Kind() DataKind { return KindEPG }

func (e *EPGEvent) encode(dst []byte) {
	binary.LittleEndian.PutUint16(dst[EPGOffsetChannel:EPGOffsetDate], e.Channel)
	putDate(dst[EPGOffsetDate:EPGOffsetHour], e.Date)
	dst[EPGOffsetHour] = e.Hour
	dst[EPGOffsetMinute] = e.Minute
	binary.LittleEndian.PutUint16(dst[EPGOffsetDuration:EPGOffsetTitle], e.Duration)
	putText(dst[EPGOffsetTitle:EPGOffsetDescription], e.Title)
	putText(dst[EPGOffsetDescription:EPGRecordSize], e.Description)
}

func (e *EPGEvent) decode(src []byte) {
	e.Channel = binary.LittleEndian.Uint16(src[EPGOffsetChannel:EPGOffsetDate])
	e.Date = getDate(src[EPGOffsetDate:EPGOffsetHour])
	e.Hour = src[EPGOffsetHour]
	e.Minute = src[EPGOffsetMinute]
	e.Duration = binary.LittleEndian.Uint16(src[EPGOffsetDuration:EPGOffsetTitle])
	e.Title = getText(src[EPGOffsetTitle:EPGOffsetDescription])
	e.Description = getText(src[EPGOffsetDescription:EPGRecordSize])
}
