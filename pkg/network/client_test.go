package network

import (
	"context"
	"encoding/hex"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unikmhz/npui-sub001/internal/testhelpers"
	"github.com/unikmhz/npui-sub001/pkg/metrics"
	"github.com/unikmhz/npui-sub001/pkg/protocol"
)

const referenceHash = "e736fec9f20bb94ede7f9920cbc850bd" // MD2("test" || 01..08)

func startHeadend(t *testing.T) *testhelpers.MockHeadend {
	t.Helper()
	m := testhelpers.NewMockHeadend("admin", "test")
	require.NoError(t, m.Start())
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func connect(t *testing.T, m *testhelpers.MockHeadend, cfg ClientConfig) *Client {
	t.Helper()
	s := NewSession(m.Addr(), time.Second, nil)
	require.NoError(t, s.Open(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return NewClient(s, cfg, nil, nil)
}

func login(t *testing.T, m *testhelpers.MockHeadend) *Client {
	t.Helper()
	c := connect(t, m, ClientConfig{CheckReplies: true})
	require.NoError(t, c.Authenticate("admin", "test"))
	return c
}

func TestPasswordHash_Reference(t *testing.T) {
	salt := [protocol.SaltSize]byte{1, 2, 3, 4, 5, 6, 7, 8}
	hash := passwordHash([]byte("test"), salt)
	assert.Equal(t, referenceHash, hex.EncodeToString(hash[:]))
}

func TestClient_Authenticate(t *testing.T) {
	m := startHeadend(t)
	c := connect(t, m, ClientConfig{CheckReplies: true})

	require.NoError(t, c.Authenticate("admin", "test"))
	assert.Equal(t, StateAuthenticated, c.Session().State())
	assert.Equal(t, "admin", c.User())

	reqs := m.Requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, protocol.CmdLoginGetInfo, reqs[0].Header.Command)
	assert.Empty(t, reqs[0].Payload)
	assert.Equal(t, protocol.CmdLoginTry, reqs[1].Header.Command)

	user, hash, err := protocol.ParseLoginTry(reqs[1].Payload)
	require.NoError(t, err)
	assert.Equal(t, "admin", user)
	assert.Equal(t, referenceHash, hex.EncodeToString(hash[:]))
}

func TestClient_AuthenticateWrongPassword(t *testing.T) {
	m := startHeadend(t)
	c := connect(t, m, ClientConfig{CheckReplies: true})

	err := c.Authenticate("admin", "wrong")
	require.Error(t, err)
	assert.ErrorIs(t, err, protocol.ErrAuth)
	assert.ErrorIs(t, err, protocol.ErrWrongPassword)
	assert.Equal(t, StateOpen, c.Session().State())
	assert.Empty(t, c.User())
}

func TestClient_AuthenticateUnknownUser(t *testing.T) {
	hashed := 0
	orig := passwordHash
	passwordHash = func(p []byte, salt [protocol.SaltSize]byte) [protocol.PasswordHashSize]byte {
		hashed++
		return orig(p, salt)
	}
	t.Cleanup(func() { passwordHash = orig })

	m := startHeadend(t)
	c := connect(t, m, ClientConfig{CheckReplies: true})

	err := c.Authenticate("root", "test")
	require.Error(t, err)
	assert.ErrorIs(t, err, protocol.ErrAuth)
	assert.ErrorIs(t, err, protocol.ErrUnknownUser)
	assert.Zero(t, hashed)
	assert.Equal(t, []protocol.Command{protocol.CmdLoginGetInfo}, m.Commands())
}

func TestClient_Deauthenticate(t *testing.T) {
	m := startHeadend(t)
	c := connect(t, m, ClientConfig{CheckReplies: true})

	done, err := c.Deauthenticate()
	require.NoError(t, err)
	assert.False(t, done)
	assert.Empty(t, m.Requests())

	require.NoError(t, c.Authenticate("admin", "test"))
	done, err = c.Deauthenticate()
	require.NoError(t, err)
	assert.True(t, done)
	assert.Equal(t, StateOpen, c.Session().State())
	assert.Equal(t, protocol.CmdLogout, m.Commands()[2])
}

func TestClient_CountShortReply(t *testing.T) {
	m := startHeadend(t)
	m.Handle(protocol.CmdTotalsGet, func(testhelpers.Request) testhelpers.Reply {
		return testhelpers.Reply{Status: protocol.StatusOK, Payload: []byte{1, 0, 0}}
	})
	c := connect(t, m, ClientConfig{CheckReplies: true})

	_, err := c.Count(protocol.KindSubscribers, 0, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, protocol.ErrServer)
	assert.ErrorIs(t, err, protocol.ErrLengthMismatch)
	assert.Equal(t, StateOpen, c.Session().State())
}

func TestClient_Count(t *testing.T) {
	m := startHeadend(t)
	m.PutRecord(protocol.KindPackages, 0, &protocol.Package{Name: "basic"})
	m.PutRecord(protocol.KindPackages, 1, &protocol.Package{Name: "sport"})
	c := connect(t, m, ClientConfig{CheckReplies: true})

	date := &protocol.Date{Year: 2026, Month: 10, Day: 18}
	n, err := c.Count(protocol.KindPackages, 0, date)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), n)

	q, err := protocol.ParseQuery(m.Requests()[0].Payload, false)
	require.NoError(t, err)
	assert.Equal(t, date, q.Date)

	_, err = c.Count(protocol.DataKind(8), 0, nil)
	assert.ErrorIs(t, err, protocol.ErrValidation)
}

func TestClient_GetLengthMismatch(t *testing.T) {
	m := startHeadend(t)
	m.Handle(protocol.CmdDataGet, func(testhelpers.Request) testhelpers.Reply {
		return testhelpers.Reply{Status: protocol.StatusOK, Payload: make([]byte, protocol.PackageRecordSize*2+1)}
	})
	c := connect(t, m, ClientConfig{CheckReplies: true})

	_, err := c.Get(protocol.KindPackages, 1, 2, 0, nil)
	assert.ErrorIs(t, err, protocol.ErrServer)
	assert.ErrorIs(t, err, protocol.ErrLengthMismatch)
}

func TestClient_SetAndGet(t *testing.T) {
	m := startHeadend(t)
	c := login(t, m)

	mask, _ := protocol.MaskOf(2, 5)
	sub := &protocol.Subscriber{
		Active:      true,
		AdminStatus: protocol.AdminActive,
		Name:        "Card 17",
		Expiry:      protocol.Date{Year: 2027, Month: 1, Day: 1},
		Mask:        mask,
	}
	require.NoError(t, c.Set(protocol.KindSubscribers, 17, sub))
	assert.Equal(t, sub, m.Record(protocol.KindSubscribers, 17))

	records, err := c.Get(protocol.KindSubscribers, 16, 17, 0, nil)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, &protocol.Subscriber{}, records[0])
	assert.Equal(t, sub, records[1])

	ids, err := c.Find(protocol.KindSubscribers, 0, "Card")
	require.NoError(t, err)
	assert.Equal(t, []uint32{17}, ids)

	masks, err := c.GetSubscriptions(17, 17)
	require.NoError(t, err)
	assert.Equal(t, []protocol.Mask{mask}, masks)
}

func TestClient_ServerStatus(t *testing.T) {
	tests := []struct {
		name      string
		status    protocol.ReplyStatus
		busy      bool
		temporary bool
	}{
		{"busy", protocol.StatusBusy, true, true},
		{"error", protocol.StatusError, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := startHeadend(t)
			m.Handle(protocol.CmdStatusGet, func(testhelpers.Request) testhelpers.Reply {
				return testhelpers.Reply{Status: tt.status, Payload: []byte("detail")}
			})
			c := connect(t, m, ClientConfig{CheckReplies: true})

			_, err := c.Status()
			require.Error(t, err)
			assert.ErrorIs(t, err, protocol.ErrServer)
			assert.Equal(t, tt.busy, errors.Is(err, protocol.ErrBusy))

			var pe *protocol.Error
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, tt.temporary, pe.Temporary())
			assert.Equal(t, tt.status, pe.Status)

			// The reply payload was consumed; the stream stays in sync.
			assert.Equal(t, StateOpen, c.Session().State())
			_, err = c.Version()
			assert.NoError(t, err)
		})
	}
}

func TestClient_ReplyMismatch(t *testing.T) {
	other := protocol.CorrelationID{0xFF, 0xFF, 0xFF, 0xFF}

	t.Run("correlation", func(t *testing.T) {
		m := startHeadend(t)
		m.Handle(protocol.CmdLoginGetVersion, func(testhelpers.Request) testhelpers.Reply {
			return testhelpers.Reply{Status: protocol.StatusOK, Correlation: &other}
		})
		c := connect(t, m, ClientConfig{CheckReplies: true})

		_, err := c.Version()
		assert.ErrorIs(t, err, protocol.ErrTransport)
		assert.ErrorIs(t, err, protocol.ErrCorrelationMismatch)
		assert.Equal(t, StateClosed, c.Session().State())
	})

	t.Run("command", func(t *testing.T) {
		m := startHeadend(t)
		m.Handle(protocol.CmdLoginGetVersion, func(testhelpers.Request) testhelpers.Reply {
			return testhelpers.Reply{Status: protocol.StatusOK, Command: protocol.CmdStatusGet}
		})
		c := connect(t, m, ClientConfig{CheckReplies: true})

		_, err := c.Version()
		assert.ErrorIs(t, err, protocol.ErrCommandMismatch)
		assert.Equal(t, StateClosed, c.Session().State())
	})

	t.Run("unchecked", func(t *testing.T) {
		m := startHeadend(t)
		m.Handle(protocol.CmdLoginGetVersion, func(testhelpers.Request) testhelpers.Reply {
			return testhelpers.Reply{
				Status:      protocol.StatusOK,
				Correlation: &other,
				Payload:     protocol.EncodeVersion(protocol.Version{Major: 3}),
			}
		})
		c := connect(t, m, ClientConfig{CheckReplies: false})

		v, err := c.Version()
		require.NoError(t, err)
		assert.Equal(t, uint8(3), v.Major)
	})
}

func TestClient_MalformedReplyHeader(t *testing.T) {
	tests := []struct {
		name  string
		reply testhelpers.Reply
		cause error
	}{
		{"bad magic", testhelpers.Reply{Raw: []byte{0xE4, 0xA5, 0x5A, 0xE3, 0x13, 0, 0, 0, 0, 0, 0, 0}}, protocol.ErrBadMagic},
		{"unknown status", testhelpers.Reply{Raw: []byte{0xE4, 0xA5, 0x5A, 0xE2, 0x13, 9, 0, 0, 0, 0, 0, 0}}, protocol.ErrUnknownStatus},
		{"hangup", testhelpers.Reply{Hangup: true}, protocol.ErrPeerClosed},
		{"truncated", testhelpers.Reply{Raw: []byte{0xE4, 0xA5, 0x5A}, Hangup: true}, protocol.ErrPeerClosed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := startHeadend(t)
			m.Handle(protocol.CmdLoginGetVersion, func(testhelpers.Request) testhelpers.Reply { return tt.reply })
			c := connect(t, m, ClientConfig{CheckReplies: true})

			_, err := c.Version()
			assert.ErrorIs(t, err, protocol.ErrTransport)
			assert.ErrorIs(t, err, tt.cause)
			assert.Equal(t, StateClosed, c.Session().State())
		})
	}
}

func TestClient_ChunkedReplies(t *testing.T) {
	m := startHeadend(t)
	m.ChunkSize = 1
	m.PutRecord(protocol.KindEPG, 4, &protocol.EPGEvent{Channel: 2, Title: "Film"})
	c := login(t, m)

	records, err := c.Get(protocol.KindEPG, 4, 4, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, "Film", records[0].(*protocol.EPGEvent).Title)
}

func TestClient_ValidationBeforeIO(t *testing.T) {
	m := startHeadend(t)
	c := connect(t, m, ClientConfig{CheckReplies: true})

	_, err := c.Call(protocol.Command(0x99), protocol.AddressBus, nil)
	assert.ErrorIs(t, err, protocol.ErrValidation)

	_, err = c.Call(protocol.CmdStatusGet, protocol.Address(33), nil)
	assert.ErrorIs(t, err, protocol.ErrBadAddress)

	_, err = c.Call(protocol.CmdLogoWrite, protocol.AddressBus, make([]byte, protocol.MaxPayloadSize+1))
	assert.ErrorIs(t, err, protocol.ErrPayloadTooLarge)

	err = c.SetSubscriptions(1, 1, protocol.Mask{}, 0)
	assert.ErrorIs(t, err, protocol.ErrAuth)
	assert.ErrorIs(t, err, protocol.ErrNotAuthenticated)

	assert.Empty(t, m.Requests())
	assert.Equal(t, StateOpen, c.Session().State())
}

func TestClient_ModuleCommands(t *testing.T) {
	m := startHeadend(t)
	c := login(t, m)

	_, err := c.ModuleReset(protocol.AddressBroadcast)
	require.NoError(t, err)
	_, err = c.ModuleCheck(7)
	require.NoError(t, err)
	_, err = c.BusStatus()
	require.NoError(t, err)
	require.NoError(t, c.DeleteEPG(&protocol.Date{Year: 2026, Month: 1, Day: 1}))

	reqs := m.Requests()[2:]
	require.Len(t, reqs, 4)
	assert.Equal(t, protocol.CmdModuleReset, reqs[0].Header.Command)
	assert.Equal(t, protocol.AddressBroadcast, reqs[0].Header.Address)
	assert.Equal(t, protocol.Address(7), reqs[1].Header.Address)
	assert.Equal(t, protocol.CmdBusGetStatus, reqs[2].Header.Command)
	assert.Len(t, reqs[3].Payload, protocol.DateSize)
}

func TestClient_Metrics(t *testing.T) {
	m := startHeadend(t)
	collector := metrics.NewCollector()
	s := NewSession(m.Addr(), time.Second, nil, WithMetrics(collector))
	c := NewClient(s, ClientConfig{CheckReplies: true}, nil, collector)

	require.NoError(t, s.Do(context.Background(), func(*Session) error {
		return c.Authenticate("admin", "test")
	}))

	families, err := collector.Registry().Gather()
	require.NoError(t, err)
	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["ca_headend_requests_total"])
	assert.True(t, names["ca_headend_logins_total"])
}

// open, authenticate, set one subscriber's mask, count, close
func TestClient_EndToEnd(t *testing.T) {
	m := startHeadend(t)
	s := NewSession(m.Addr(), time.Second, nil)
	c := NewClient(s, ClientConfig{CheckReplies: true}, nil, nil)

	var count uint32
	err := s.Do(context.Background(), func(*Session) error {
		if err := c.Authenticate("admin", "test"); err != nil {
			return err
		}
		mask, err := protocol.MaskOf(3)
		if err != nil {
			return err
		}
		if err := c.SetSubscriptions(1, 1, mask, 0); err != nil {
			return err
		}
		count, err = c.Count(protocol.KindSubscribers, 0, nil)
		return err
	})
	require.NoError(t, err)

	assert.Equal(t, StateClosed, s.State())
	assert.True(t, m.Mask(1).Has(3))
	assert.Equal(t, uint32(0), count)
	assert.Equal(t, []protocol.Command{
		protocol.CmdLoginGetInfo,
		protocol.CmdLoginTry,
		protocol.CmdSubscriberSet,
		protocol.CmdTotalsGet,
	}, m.Commands())
}
