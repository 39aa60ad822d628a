package protocol

import (
	"encoding/binary"
	"fmt"
)

// Login payload sizes
const (
	SaltSize            = 8
	UsernameSize        = 32
	UserDescriptionSize = 64
	LoginUserSize       = UsernameSize + UserDescriptionSize
	PasswordHashSize    = 16
	LoginTrySize        = UsernameSize + PasswordHashSize
)

// Other fixed request payload sizes
const (
	SubscriberRangeSize = 8 // from u32, to u32
	SubscriberSetSize   = SubscriberRangeSize + 1 + MaskSize
	FindQuerySize       = 64
	IDSize              = 4
	VersionHeaderSize   = 4 // u8 major, u8 minor, u16 build
)

// LoginUser is one account advertised by LOGIN_GETINFO
type LoginUser struct {
	Name        string
	Description string
}

// LoginInfo is the LOGIN_GETINFO reply: the session salt and the account list
type LoginInfo struct {
	Salt  [SaltSize]byte
	Users []LoginUser
}

// HasUser reports whether name is an advertised account
func (li *LoginInfo) HasUser(name string) bool {
	for _, u := range li.Users {
		if u.Name == name {
			return true
		}
	}
	return false
}

// ParseLoginInfo decodes a LOGIN_GETINFO reply payload
func ParseLoginInfo(data []byte) (*LoginInfo, error) {
	if len(data) < SaltSize || (len(data)-SaltSize)%LoginUserSize != 0 {
		return nil, fmt.Errorf("%w: login info of %d bytes", ErrLengthMismatch, len(data))
	}

	info := &LoginInfo{}
	copy(info.Salt[:], data[:SaltSize])
	for off := SaltSize; off < len(data); off += LoginUserSize {
		info.Users = append(info.Users, LoginUser{
			Name:        getText(data[off : off+UsernameSize]),
			Description: getText(data[off+UsernameSize : off+LoginUserSize]),
		})
	}
	return info, nil
}

// EncodeLoginInfo builds a LOGIN_GETINFO reply payload
func EncodeLoginInfo(info *LoginInfo) []byte {
	data := make([]byte, SaltSize+len(info.Users)*LoginUserSize)
	copy(data[:SaltSize], info.Salt[:])
	for i, u := range info.Users {
		off := SaltSize + i*LoginUserSize
		putText(data[off:off+UsernameSize], u.Name)
		putText(data[off+UsernameSize:off+LoginUserSize], u.Description)
	}
	return data
}

// EncodeLoginTry builds a LOGIN_TRY payload: username + password hash
func EncodeLoginTry(user string, hash [PasswordHashSize]byte) []byte {
	data := make([]byte, LoginTrySize)
	putText(data[:UsernameSize], user)
	copy(data[UsernameSize:], hash[:])
	return data
}

// ParseLoginTry decodes a LOGIN_TRY payload
func ParseLoginTry(data []byte) (string, [PasswordHashSize]byte, error) {
	var hash [PasswordHashSize]byte
	if len(data) != LoginTrySize {
		return "", hash, fmt.Errorf("%w: login try of %d bytes", ErrLengthMismatch, len(data))
	}
	copy(hash[:], data[UsernameSize:])
	return getText(data[:UsernameSize]), hash, nil
}

// EncodeSubscriberRange builds a SUBSCRIBER_GET payload
func EncodeSubscriberRange(from, to uint32) ([]byte, error) {
	if to < from {
		return nil, validationError("encode subscriber range", fmt.Errorf("%w: %d..%d", ErrBadRange, from, to))
	}
	data := make([]byte, SubscriberRangeSize)
	binary.LittleEndian.PutUint32(data[0:4], from)
	binary.LittleEndian.PutUint32(data[4:8], to)
	return data, nil
}

// SubscriberSet is the SUBSCRIBER_SET request body
type SubscriberSet struct {
	From     uint32
	To       uint32
	Priority uint8
	Mask     Mask
}

// EncodeSubscriberSet builds a SUBSCRIBER_SET payload
func EncodeSubscriberSet(req SubscriberSet) ([]byte, error) {
	if req.To < req.From {
		return nil, validationError("encode subscriber set", fmt.Errorf("%w: %d..%d", ErrBadRange, req.From, req.To))
	}
	data := make([]byte, SubscriberSetSize)
	binary.LittleEndian.PutUint32(data[0:4], req.From)
	binary.LittleEndian.PutUint32(data[4:8], req.To)
	data[8] = req.Priority
	copy(data[9:], req.Mask[:])
	return data, nil
}

// ParseSubscriberSet decodes a SUBSCRIBER_SET payload
func ParseSubscriberSet(data []byte) (SubscriberSet, error) {
	var req SubscriberSet
	if len(data) != SubscriberSetSize {
		return req, fmt.Errorf("%w: subscriber set of %d bytes", ErrLengthMismatch, len(data))
	}
	req.From = binary.LittleEndian.Uint32(data[0:4])
	req.To = binary.LittleEndian.Uint32(data[4:8])
	req.Priority = data[8]
	copy(req.Mask[:], data[9:])
	return req, nil
}

// ParseMasks splits a SUBSCRIBER_GET reply into one mask per id in from..to
func ParseMasks(data []byte, from, to uint32) ([]Mask, error) {
	count := uint64(to-from) + 1
	if to < from || uint64(len(data)) != count*MaskSize {
		return nil, fmt.Errorf("%w: %d bytes for %d masks", ErrLengthMismatch, len(data), count)
	}
	masks := make([]Mask, count)
	for i := range masks {
		copy(masks[i][:], data[i*MaskSize:(i+1)*MaskSize])
	}
	return masks, nil
}

// Query selects a slice of a DataKind table for TOTALS_GET and DATA_GET
type Query struct {
	Kind    DataKind
	Subtype uint8
	From    uint32
	To      uint32
	Date    *Date
}

// EncodeTotals builds a TOTALS_GET payload: kind, subtype [, date]
func EncodeTotals(q Query) ([]byte, error) {
	if !q.Kind.Known() {
		return nil, validationError("encode totals", fmt.Errorf("%w: %d", ErrUnknownKind, uint8(q.Kind)))
	}
	data := []byte{byte(q.Kind), q.Subtype}
	return appendDate(data, q.Date), nil
}

// EncodeDataGet builds a DATA_GET payload: kind, subtype, from, to [, date]
func EncodeDataGet(q Query) ([]byte, error) {
	if !q.Kind.Known() {
		return nil, validationError("encode data get", fmt.Errorf("%w: %d", ErrUnknownKind, uint8(q.Kind)))
	}
	if q.To < q.From {
		return nil, validationError("encode data get", fmt.Errorf("%w: %d..%d", ErrBadRange, q.From, q.To))
	}
	data := make([]byte, 10)
	data[0] = byte(q.Kind)
	data[1] = q.Subtype
	binary.LittleEndian.PutUint32(data[2:6], q.From)
	binary.LittleEndian.PutUint32(data[6:10], q.To)
	return appendDate(data, q.Date), nil
}

// ParseQuery decodes a TOTALS_GET (withRange false) or DATA_GET payload
func ParseQuery(data []byte, withRange bool) (Query, error) {
	var q Query
	fixed := 2
	if withRange {
		fixed = 10
	}
	if len(data) != fixed && len(data) != fixed+DateSize {
		return q, fmt.Errorf("%w: query of %d bytes", ErrLengthMismatch, len(data))
	}
	q.Kind = DataKind(data[0])
	q.Subtype = data[1]
	if withRange {
		q.From = binary.LittleEndian.Uint32(data[2:6])
		q.To = binary.LittleEndian.Uint32(data[6:10])
	}
	if len(data) == fixed+DateSize {
		d := getDate(data[fixed:])
		q.Date = &d
	}
	return q, nil
}

// EncodeDataSet builds a DATA_SET payload: kind, id, one encoded record
func EncodeDataSet(kind DataKind, id uint32, r Record) ([]byte, error) {
	rec, err := EncodeRecord(kind, r)
	if err != nil {
		return nil, err
	}
	data := make([]byte, 5, 5+len(rec))
	data[0] = byte(kind)
	binary.LittleEndian.PutUint32(data[1:5], id)
	return append(data, rec...), nil
}

// ParseDataSet decodes a DATA_SET payload
func ParseDataSet(data []byte) (DataKind, uint32, Record, error) {
	if len(data) < 5 {
		return 0, 0, nil, fmt.Errorf("%w: data set of %d bytes", ErrLengthMismatch, len(data))
	}
	kind := DataKind(data[0])
	id := binary.LittleEndian.Uint32(data[1:5])
	records, err := DecodeRecords(kind, data[5:], id, id)
	if err != nil {
		return kind, id, nil, err
	}
	return kind, id, records[0], nil
}

// EncodeFind builds a DATA_FIND payload: kind, subtype, 64-byte query text
func EncodeFind(kind DataKind, subtype uint8, query string) ([]byte, error) {
	if !kind.Known() {
		return nil, validationError("encode find", fmt.Errorf("%w: %d", ErrUnknownKind, uint8(kind)))
	}
	data := make([]byte, 2+FindQuerySize)
	data[0] = byte(kind)
	data[1] = subtype
	putText(data[2:], query)
	return data, nil
}

// ParseIDs decodes a list of u32 record ids
func ParseIDs(data []byte) ([]uint32, error) {
	if len(data)%IDSize != 0 {
		return nil, fmt.Errorf("%w: id list of %d bytes", ErrLengthMismatch, len(data))
	}
	ids := make([]uint32, len(data)/IDSize)
	for i := range ids {
		ids[i] = binary.LittleEndian.Uint32(data[i*IDSize:])
	}
	return ids, nil
}

// EncodeDate builds a 4-byte date payload, or nothing for a nil date
func EncodeDate(d *Date) []byte {
	return appendDate(nil, d)
}

// Version is the LOGIN_GETVERSION reply
type Version struct {
	Major uint8
	Minor uint8
	Build uint16
	Text  string
}

func (v Version) String() string {
	s := fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Build)
	if v.Text != "" {
		s += " (" + v.Text + ")"
	}
	return s
}

// ParseVersion decodes a LOGIN_GETVERSION reply payload
func ParseVersion(data []byte) (Version, error) {
	var v Version
	if len(data) < VersionHeaderSize {
		return v, fmt.Errorf("%w: version of %d bytes", ErrLengthMismatch, len(data))
	}
	v.Major = data[0]
	v.Minor = data[1]
	v.Build = binary.LittleEndian.Uint16(data[2:4])
	v.Text = getText(data[VersionHeaderSize:])
	return v, nil
}

// EncodeVersion builds a LOGIN_GETVERSION reply payload
func EncodeVersion(v Version) []byte {
	data := make([]byte, VersionHeaderSize, VersionHeaderSize+len(v.Text))
	data[0] = v.Major
	data[1] = v.Minor
	binary.LittleEndian.PutUint16(data[2:4], v.Build)
	return append(data, v.Text...)
}

func appendDate(data []byte, d *Date) []byte {
	if d == nil {
		return data
	}
	var buf [DateSize]byte
	putDate(buf[:], *d)
	return append(data, buf[:]...)
}

// ParseFind decodes a DATA_FIND payload
func ParseFind(data []byte) (DataKind, uint8, string, error) {
	if len(data) != 2+FindQuerySize {
		return 0, 0, "", fmt.Errorf("%w: find of %d bytes", ErrLengthMismatch, len(data))
	}
	return DataKind(data[0]), data[1], getText(data[2:]), nil
}

// EncodeIDs builds a list of u32 record ids
func EncodeIDs(ids []uint32) []byte {
	data := make([]byte, len(ids)*IDSize)
	for i, id := range ids {
		binary.LittleEndian.PutUint32(data[i*IDSize:], id)
	}
	return data
}
