package network

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/unikmhz/npui-sub001/pkg/logger"
	"github.com/unikmhz/npui-sub001/pkg/md2"
	"github.com/unikmhz/npui-sub001/pkg/metrics"
	"github.com/unikmhz/npui-sub001/pkg/protocol"
)

// ClientConfig tunes the command dispatcher
type ClientConfig struct {
	// Address is the module address used by module-scoped commands when the
	// caller does not pass one.
	Address protocol.Address
	// CheckReplies verifies the echoed command and correlation id.
	CheckReplies bool
}

// passwordHash computes the LOGIN_TRY digest. Replaced in tests.
var passwordHash = func(password []byte, salt [protocol.SaltSize]byte) [protocol.PasswordHashSize]byte {
	data := make([]byte, 0, len(password)+len(salt))
	data = append(data, password...)
	data = append(data, salt[:]...)
	return md2.Sum(data)
}

// Client issues head-end commands over a Session, one call at a time
type Client struct {
	session *Session
	config  ClientConfig
	log     *logger.Logger
	metrics *metrics.Collector
	user    string
}

// NewClient creates a dispatcher bound to session
func NewClient(session *Session, cfg ClientConfig, log *logger.Logger, m *metrics.Collector) *Client {
	if log == nil {
		log = logger.Nop()
	}
	return &Client{
		session: session,
		config:  cfg,
		log:     log.WithComponent("network.client"),
		metrics: m,
	}
}

// Session returns the underlying transport
func (c *Client) Session() *Session {
	return c.session
}

// User returns the authenticated username, if any
func (c *Client) User() string {
	if c.session.State() != StateAuthenticated {
		return ""
	}
	return c.user
}

// Call sends one request and reads its reply. Non-OK replies are returned as
// server errors after the payload has been consumed.
func (c *Client) Call(cmd protocol.Command, addr protocol.Address, payload []byte) ([]byte, error) {
	reply, err := c.call(cmd, addr, payload)
	if err != nil {
		c.metrics.CallFailed(protocol.KindOf(err).String())
	}
	return reply, err
}

func (c *Client) call(cmd protocol.Command, addr protocol.Address, payload []byte) ([]byte, error) {
	frame, id, err := protocol.EncodeRequest(cmd, addr, payload)
	if err != nil {
		return nil, err
	}

	c.log.Debug("Sending request",
		logger.String("command", cmd.String()),
		logger.Uint("address", uint(addr)),
		logger.String("correlation_id", id.String()),
		logger.Int("payload_len", len(payload)))

	start := time.Now()
	if err := c.session.Send(frame); err != nil {
		return nil, err
	}
	c.metrics.RequestSent(cmd.String(), len(frame))

	raw, err := c.session.RecvExact(protocol.HeaderSize)
	if err != nil {
		return nil, err
	}
	header, err := protocol.DecodeReplyHeader(raw)
	if err != nil {
		_ = c.session.Close()
		return nil, err
	}
	if c.config.CheckReplies {
		if err := header.Match(cmd, id); err != nil {
			_ = c.session.Close()
			return nil, err
		}
	}

	var reply []byte
	if header.Length > 0 {
		reply, err = c.session.RecvExact(int(header.Length))
		if err != nil {
			return nil, err
		}
	}
	c.metrics.ReplyReceived(cmd.String(), header.Status.String(), protocol.HeaderSize+len(reply), time.Since(start))

	c.log.Debug("Received reply",
		logger.String("command", header.Command.String()),
		logger.String("status", header.Status.String()),
		logger.String("correlation_id", header.Correlation.String()),
		logger.Int("payload_len", len(reply)))

	if header.Status != protocol.StatusOK {
		return reply, protocol.NewServerError(cmd.String(), header.Status,
			fmt.Errorf("%w by head-end", protocol.ErrRejected))
	}
	return reply, nil
}

// malformed reports an OK reply whose payload does not decode
func malformed(op string, err error) error {
	return protocol.NewServerError(op, protocol.StatusOK, err)
}

// Authenticate performs the LOGIN_GETINFO / LOGIN_TRY handshake
func (c *Client) Authenticate(user, password string) error {
	data, err := c.Call(protocol.CmdLoginGetInfo, protocol.AddressBus, nil)
	if err != nil {
		c.metrics.LoginAttempt("error")
		return err
	}
	info, err := protocol.ParseLoginInfo(data)
	if err != nil {
		c.metrics.LoginAttempt("error")
		return malformed("authenticate", err)
	}
	if !info.HasUser(user) {
		c.metrics.LoginAttempt("unknown_user")
		return protocol.NewAuthError("authenticate", fmt.Errorf("%w: %q", protocol.ErrUnknownUser, user))
	}

	hash := passwordHash([]byte(password), info.Salt)
	reply, err := c.Call(protocol.CmdLoginTry, protocol.AddressBus, protocol.EncodeLoginTry(user, hash))
	if err != nil {
		c.metrics.LoginAttempt("error")
		return err
	}
	if len(reply) == 0 {
		c.metrics.LoginAttempt("wrong_password")
		return protocol.NewAuthError("authenticate", fmt.Errorf("%w for %q", protocol.ErrWrongPassword, user))
	}

	c.user = user
	c.session.setState(StateAuthenticated)
	c.metrics.LoginAttempt("ok")
	c.log.Info("Logged in to head-end", logger.String("user", user), logger.String("addr", c.session.Addr()))
	return nil
}

// Deauthenticate sends LOGOUT. It returns false without I/O when the
// Session is not authenticated.
func (c *Client) Deauthenticate() (bool, error) {
	if c.session.State() != StateAuthenticated {
		return false, nil
	}
	if _, err := c.Call(protocol.CmdLogout, protocol.AddressBus, nil); err != nil {
		return false, err
	}
	c.session.setState(StateOpen)
	c.log.Info("Logged out of head-end", logger.String("user", c.user))
	c.user = ""
	return true, nil
}

func (c *Client) requireAuth(op string) error {
	if c.session.State() != StateAuthenticated {
		return protocol.NewAuthError(op, protocol.ErrNotAuthenticated)
	}
	return nil
}

// Version queries LOGIN_GETVERSION
func (c *Client) Version() (protocol.Version, error) {
	data, err := c.Call(protocol.CmdLoginGetVersion, protocol.AddressBus, nil)
	if err != nil {
		return protocol.Version{}, err
	}
	v, err := protocol.ParseVersion(data)
	if err != nil {
		return v, malformed("version", err)
	}
	return v, nil
}

// GetSubscriptions reads the entitlement masks of subscribers from..to
func (c *Client) GetSubscriptions(from, to uint32) ([]protocol.Mask, error) {
	payload, err := protocol.EncodeSubscriberRange(from, to)
	if err != nil {
		return nil, err
	}
	data, err := c.Call(protocol.CmdSubscriberGet, protocol.AddressBus, payload)
	if err != nil {
		return nil, err
	}
	masks, err := protocol.ParseMasks(data, from, to)
	if err != nil {
		return nil, malformed("get subscriptions", err)
	}
	return masks, nil
}

// SetSubscriptions writes one mask to subscribers from..to
func (c *Client) SetSubscriptions(from, to uint32, mask protocol.Mask, priority uint8) error {
	if err := c.requireAuth("set subscriptions"); err != nil {
		return err
	}
	payload, err := protocol.EncodeSubscriberSet(protocol.SubscriberSet{
		From: from, To: to, Priority: priority, Mask: mask,
	})
	if err != nil {
		return err
	}
	_, err = c.Call(protocol.CmdSubscriberSet, protocol.AddressBus, payload)
	return err
}

// Count returns the number of records of kind via TOTALS_GET
func (c *Client) Count(kind protocol.DataKind, subtype uint8, date *protocol.Date) (uint32, error) {
	payload, err := protocol.EncodeTotals(protocol.Query{Kind: kind, Subtype: subtype, Date: date})
	if err != nil {
		return 0, err
	}
	data, err := c.Call(protocol.CmdTotalsGet, protocol.AddressBus, payload)
	if err != nil {
		return 0, err
	}
	if len(data) != 4 {
		return 0, malformed("count", fmt.Errorf("%w: %d bytes (expected 4)", protocol.ErrLengthMismatch, len(data)))
	}
	return binary.LittleEndian.Uint32(data), nil
}

// Get reads records from..to of kind via DATA_GET
func (c *Client) Get(kind protocol.DataKind, from, to uint32, subtype uint8, date *protocol.Date) ([]protocol.Record, error) {
	payload, err := protocol.EncodeDataGet(protocol.Query{
		Kind: kind, Subtype: subtype, From: from, To: to, Date: date,
	})
	if err != nil {
		return nil, err
	}
	data, err := c.Call(protocol.CmdDataGet, protocol.AddressBus, payload)
	if err != nil {
		return nil, err
	}
	records, err := protocol.DecodeRecords(kind, data, from, to)
	if err != nil {
		return nil, malformed("get", err)
	}
	return records, nil
}

// Set writes one record via DATA_SET
func (c *Client) Set(kind protocol.DataKind, id uint32, record protocol.Record) error {
	if err := c.requireAuth("set"); err != nil {
		return err
	}
	payload, err := protocol.EncodeDataSet(kind, id, record)
	if err != nil {
		return err
	}
	_, err = c.Call(protocol.CmdDataSet, protocol.AddressBus, payload)
	return err
}

// Find searches records of kind by text via DATA_FIND
func (c *Client) Find(kind protocol.DataKind, subtype uint8, query string) ([]uint32, error) {
	payload, err := protocol.EncodeFind(kind, subtype, query)
	if err != nil {
		return nil, err
	}
	data, err := c.Call(protocol.CmdDataFind, protocol.AddressBus, payload)
	if err != nil {
		return nil, err
	}
	ids, err := protocol.ParseIDs(data)
	if err != nil {
		return nil, malformed("find", err)
	}
	return ids, nil
}

// DeleteEPG removes programme guide entries for date, or all when date is nil
func (c *Client) DeleteEPG(date *protocol.Date) error {
	if err := c.requireAuth("delete epg"); err != nil {
		return err
	}
	_, err := c.Call(protocol.CmdEPGDelete, protocol.AddressBus, protocol.EncodeDate(date))
	return err
}
