package protocol

import "fmt"

// Frame header constants (all integers little-endian)
const (
	Magic           uint32 = 0xE25AA5E4
	HeaderSize             = 12
	MaxPayloadSize         = 65535
	CorrelationSize        = 4
)

// Header field offsets, shared by request and reply headers
const (
	HeaderOffsetMagic       = 0 // 4 bytes
	HeaderOffsetCommand     = 4 // 1 byte
	HeaderOffsetAddress     = 5 // 1 byte: module address (request) or status (reply)
	HeaderOffsetStatus      = 5
	HeaderOffsetLength      = 6 // 2 bytes: payload length
	HeaderOffsetCorrelation = 8 // 4 bytes: random correlation id
)

// Address is a module address on the head-end bus.
// 0 targets the bus itself, 1-32 a single module, 255 every module.
type Address uint8

const (
	AddressBus       Address = 0
	MaxModuleAddress Address = 32
	AddressBroadcast Address = 255
)

// Valid reports whether a is 0..32 or the broadcast address.
func (a Address) Valid() bool {
	return a <= MaxModuleAddress || a == AddressBroadcast
}

// Command is a request op-code
type Command uint8

const (
	CmdLoginGetInfo    Command = 0x10
	CmdLoginTry        Command = 0x11
	CmdLogout          Command = 0x12
	CmdLoginGetVersion Command = 0x13

	CmdStatusGet     Command = 0x20
	CmdConfigGet     Command = 0x21
	CmdSettingsGet   Command = 0x22
	CmdSettingsSet   Command = 0x23
	CmdSettingsReset Command = 0x24
	CmdLogoRead      Command = 0x26
	CmdLogoWrite     Command = 0x27

	CmdSubscriberGet Command = 0x33
	CmdSubscriberSet Command = 0x34

	CmdModuleClear     Command = 0x35
	CmdModuleCheck     Command = 0x36
	CmdModuleCheckStop Command = 0x37
	CmdModuleDelete    Command = 0x38
	CmdModuleReset     Command = 0x39

	CmdTotalsGet    Command = 0x40
	CmdDataGet      Command = 0x41
	CmdDataSet      Command = 0x42
	CmdDataFind     Command = 0x43
	CmdEPGDelete    Command = 0x44
	CmdEthernetAdd  Command = 0x54
	CmdEthernetStop Command = 0x55

	CmdBusGetStatus Command = 0x80
	CmdBusStop      Command = 0x81
	CmdBusResume    Command = 0x82
	CmdAddModule    Command = 0x88
)

var commandNames = map[Command]string{
	CmdLoginGetInfo:    "LOGIN_GETINFO",
	CmdLoginTry:        "LOGIN_TRY",
	CmdLogout:          "LOGOUT",
	CmdLoginGetVersion: "LOGIN_GETVERSION",
	CmdStatusGet:       "STATUS_GET",
	CmdConfigGet:       "CFG_GET",
	CmdSettingsGet:     "SETTINGS_GET",
	CmdSettingsSet:     "SETTINGS_SET",
	CmdSettingsReset:   "SETTINGS_RESET",
	CmdLogoRead:        "LOGO_READ",
	CmdLogoWrite:       "LOGO_WRITE",
	CmdSubscriberGet:   "SUBSCRIBER_GET",
	CmdSubscriberSet:   "SUBSCRIBER_SET",
	CmdModuleClear:     "MODULE_CLEAR",
	CmdModuleCheck:     "MODULE_CHECK",
	CmdModuleCheckStop: "MODULE_CHECK_STOP",
	CmdModuleDelete:    "MODULE_DELETE",
	CmdModuleReset:     "MODULE_RESET",
	CmdTotalsGet:       "TOTALS_GET",
	CmdDataGet:         "DATA_GET",
	CmdDataSet:         "DATA_SET",
	CmdDataFind:        "DATA_FIND",
	CmdEPGDelete:       "DATA_EPG_DELETE",
	CmdEthernetAdd:     "ETHERNET_ADD",
	CmdEthernetStop:    "ETHERNET_ADD_STOP",
	CmdBusGetStatus:    "BUS_GET_STATUS",
	CmdBusStop:         "BUS_STOP",
	CmdBusResume:       "BUS_RESUME",
	CmdAddModule:       "ADD_MODULE",
}

// Known reports whether c is part of the command catalog
func (c Command) Known() bool {
	_, ok := commandNames[c]
	return ok
}

func (c Command) String() string {
	if name, ok := commandNames[c]; ok {
		return name
	}
	return fmt.Sprintf("UNKNOWN(0x%02X)", uint8(c))
}

// ReplyStatus is the status byte of a reply header
type ReplyStatus uint8

const (
	StatusOK    ReplyStatus = 0
	StatusBusy  ReplyStatus = 1
	StatusError ReplyStatus = 2
)

// Known reports whether s is a recognized status value
func (s ReplyStatus) Known() bool {
	return s <= StatusError
}

func (s ReplyStatus) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusBusy:
		return "BUSY"
	case StatusError:
		return "ERROR"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", uint8(s))
	}
}

// DataKind selects the record table addressed by TOTALS_GET and DATA_* commands
type DataKind uint8

const (
	KindPackages    DataKind = 0
	KindSubscribers DataKind = 1
	KindLog         DataKind = 2
	KindEPG         DataKind = 3
)

// Known reports whether k is a recognized data kind
func (k DataKind) Known() bool {
	return k <= KindEPG
}

func (k DataKind) String() string {
	switch k {
	case KindPackages:
		return "packages"
	case KindSubscribers:
		return "subscribers"
	case KindLog:
		return "log"
	case KindEPG:
		return "epg"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
}

// ParseDataKind maps a kind name to its DataKind
func ParseDataKind(name string) (DataKind, error) {
	for k := KindPackages; k <= KindEPG; k++ {
		if k.String() == name {
			return k, nil
		}
	}
	return 0, validationError("parse data kind", fmt.Errorf("%w: %q", ErrUnknownKind, name))
}
