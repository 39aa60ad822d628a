package testhelpers

import (
	"encoding/binary"
	"io"
	"net"
	"sort"
	"strings"
	"sync"

	"github.com/unikmhz/npui-sub001/pkg/md2"
	"github.com/unikmhz/npui-sub001/pkg/protocol"
)

// maxMockRange caps SUBSCRIBER_SET ranges stored by the mock
const maxMockRange = 1 << 16

// Request is one frame received by the MockHeadend
type Request struct {
	Header  protocol.RequestHeader
	Payload []byte
}

// Reply describes how the MockHeadend answers a request. Zero Command and a
// nil Correlation echo the request. Raw, when set, is written verbatim.
// Hangup closes the connection after anything else has been written.
type Reply struct {
	Status      protocol.ReplyStatus
	Payload     []byte
	Command     protocol.Command
	Correlation *protocol.CorrelationID
	Raw         []byte
	Hangup      bool
}

// HandlerFunc overrides the built-in behaviour for one command
type HandlerFunc func(req Request) Reply

// MockHeadend is a conformant in-process head-end on a real TCP listener
type MockHeadend struct {
	Users    []protocol.LoginUser
	Password string
	Salt     [protocol.SaltSize]byte
	Version  protocol.Version
	// ChunkSize splits every reply into writes of at most this many bytes
	ChunkSize int

	listener net.Listener
	wg       sync.WaitGroup

	mu       sync.Mutex
	handlers map[protocol.Command]HandlerFunc
	records  map[protocol.DataKind]map[uint32]protocol.Record
	masks    map[uint32]protocol.Mask
	requests []Request
	conns    map[net.Conn]struct{}
	closed   bool
}

// NewMockHeadend creates a head-end with a single account
func NewMockHeadend(user, password string) *MockHeadend {
	return &MockHeadend{
		Users:    []protocol.LoginUser{{Name: user, Description: "test account"}},
		Password: password,
		Salt:     [protocol.SaltSize]byte{1, 2, 3, 4, 5, 6, 7, 8},
		Version:  protocol.Version{Major: 1, Minor: 0, Build: 1, Text: "mock head-end"},
		handlers: make(map[protocol.Command]HandlerFunc),
		records:  make(map[protocol.DataKind]map[uint32]protocol.Record),
		masks:    make(map[uint32]protocol.Mask),
		conns:    make(map[net.Conn]struct{}),
	}
}

// Start listens on an ephemeral loopback port
func (m *MockHeadend) Start() error {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return err
	}
	m.listener = listener

	m.wg.Add(1)
	go m.acceptLoop()
	return nil
}

// Addr returns the listener address
func (m *MockHeadend) Addr() string {
	return m.listener.Addr().String()
}

// Close stops the listener and drops every connection
func (m *MockHeadend) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	for conn := range m.conns {
		_ = conn.Close()
	}
	m.mu.Unlock()

	err := m.listener.Close()
	m.wg.Wait()
	return err
}

// Handle overrides the reply for cmd
func (m *MockHeadend) Handle(cmd protocol.Command, fn HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[cmd] = fn
}

// Requests returns every frame received so far
func (m *MockHeadend) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Request, len(m.requests))
	copy(out, m.requests)
	return out
}

// Commands returns the command of every frame received so far
func (m *MockHeadend) Commands() []protocol.Command {
	reqs := m.Requests()
	cmds := make([]protocol.Command, len(reqs))
	for i, r := range reqs {
		cmds[i] = r.Header.Command
	}
	return cmds
}

// PutRecord stores a record as if written by DATA_SET
func (m *MockHeadend) PutRecord(kind protocol.DataKind, id uint32, r protocol.Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.putRecord(kind, id, r)
}

// Record returns the stored record, or nil
func (m *MockHeadend) Record(kind protocol.DataKind, id uint32) protocol.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.records[kind][id]
}

// Mask returns the entitlement mask stored for a subscriber
func (m *MockHeadend) Mask(id uint32) protocol.Mask {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.masks[id]
}

func (m *MockHeadend) putRecord(kind protocol.DataKind, id uint32, r protocol.Record) {
	if m.records[kind] == nil {
		m.records[kind] = make(map[uint32]protocol.Record)
	}
	m.records[kind][id] = r
	if s, ok := r.(*protocol.Subscriber); ok {
		m.masks[id] = s.Mask
	}
}

func (m *MockHeadend) acceptLoop() {
	defer m.wg.Done()
	for {
		conn, err := m.listener.Accept()
		if err != nil {
			return
		}
		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			_ = conn.Close()
			return
		}
		m.conns[conn] = struct{}{}
		m.mu.Unlock()

		m.wg.Add(1)
		go m.serve(conn)
	}
}

func (m *MockHeadend) serve(conn net.Conn) {
	defer m.wg.Done()
	defer func() {
		m.mu.Lock()
		delete(m.conns, conn)
		m.mu.Unlock()
		_ = conn.Close()
	}()

	header := make([]byte, protocol.HeaderSize)
	for {
		if _, err := io.ReadFull(conn, header); err != nil {
			return
		}
		h, err := protocol.DecodeRequestHeader(header)
		if err != nil {
			return
		}
		payload := make([]byte, h.Length)
		if _, err := io.ReadFull(conn, payload); err != nil {
			return
		}

		req := Request{Header: h, Payload: payload}
		m.mu.Lock()
		m.requests = append(m.requests, req)
		handler := m.handlers[h.Command]
		m.mu.Unlock()

		var reply Reply
		if handler != nil {
			reply = handler(req)
		} else {
			reply = m.dispatch(req)
		}

		if err := m.writeReply(conn, req, reply); err != nil || reply.Hangup {
			return
		}
	}
}

func (m *MockHeadend) writeReply(conn net.Conn, req Request, reply Reply) error {
	data := reply.Raw
	if data == nil && !reply.Hangup {
		cmd := reply.Command
		if cmd == 0 {
			cmd = req.Header.Command
		}
		id := req.Header.Correlation
		if reply.Correlation != nil {
			id = *reply.Correlation
		}
		var err error
		data, err = protocol.EncodeReply(cmd, reply.Status, id, reply.Payload)
		if err != nil {
			return err
		}
	}

	chunk := m.ChunkSize
	if chunk <= 0 {
		chunk = len(data)
	}
	for len(data) > 0 {
		n := chunk
		if n > len(data) {
			n = len(data)
		}
		if _, err := conn.Write(data[:n]); err != nil {
			return err
		}
		data = data[n:]
	}
	return nil
}

func okReply(payload []byte) Reply {
	return Reply{Status: protocol.StatusOK, Payload: payload}
}

func errorReply() Reply {
	return Reply{Status: protocol.StatusError}
}

func (m *MockHeadend) dispatch(req Request) Reply {
	switch req.Header.Command {
	case protocol.CmdLoginGetInfo:
		return okReply(protocol.EncodeLoginInfo(&protocol.LoginInfo{Salt: m.Salt, Users: m.Users}))
	case protocol.CmdLoginTry:
		return m.loginTry(req.Payload)
	case protocol.CmdLoginGetVersion:
		return okReply(protocol.EncodeVersion(m.Version))
	case protocol.CmdSubscriberGet:
		return m.subscriberGet(req.Payload)
	case protocol.CmdSubscriberSet:
		return m.subscriberSet(req.Payload)
	case protocol.CmdTotalsGet:
		return m.totals(req.Payload)
	case protocol.CmdDataGet:
		return m.dataGet(req.Payload)
	case protocol.CmdDataSet:
		return m.dataSet(req.Payload)
	case protocol.CmdDataFind:
		return m.find(req.Payload)
	case protocol.CmdEPGDelete:
		return m.deleteEPG(req.Payload)
	default:
		return okReply(nil)
	}
}

func (m *MockHeadend) loginTry(payload []byte) Reply {
	user, hash, err := protocol.ParseLoginTry(payload)
	if err != nil {
		return errorReply()
	}
	known := false
	for _, u := range m.Users {
		if u.Name == user {
			known = true
		}
	}
	want := md2.Sum(append([]byte(m.Password), m.Salt[:]...))
	if !known || hash != want {
		return okReply(nil)
	}
	return okReply([]byte{0x01})
}

func (m *MockHeadend) subscriberGet(payload []byte) Reply {
	if len(payload) != protocol.SubscriberRangeSize {
		return errorReply()
	}
	from := binary.LittleEndian.Uint32(payload[0:4])
	to := binary.LittleEndian.Uint32(payload[4:8])
	if to < from || to-from >= maxMockRange {
		return errorReply()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	data := make([]byte, 0, int(to-from+1)*protocol.MaskSize)
	for id := from; ; id++ {
		mask := m.masks[id]
		data = append(data, mask[:]...)
		if id == to {
			break
		}
	}
	return okReply(data)
}

func (m *MockHeadend) subscriberSet(payload []byte) Reply {
	req, err := protocol.ParseSubscriberSet(payload)
	if err != nil || req.To < req.From || req.To-req.From >= maxMockRange {
		return errorReply()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for id := req.From; ; id++ {
		m.masks[id] = req.Mask
		if s, ok := m.records[protocol.KindSubscribers][id].(*protocol.Subscriber); ok {
			s.Mask = req.Mask
		}
		if id == req.To {
			break
		}
	}
	return okReply(nil)
}

func (m *MockHeadend) totals(payload []byte) Reply {
	q, err := protocol.ParseQuery(payload, false)
	if err != nil || !q.Kind.Known() {
		return errorReply()
	}
	m.mu.Lock()
	n := len(m.records[q.Kind])
	m.mu.Unlock()

	data := make([]byte, 4)
	binary.LittleEndian.PutUint32(data, uint32(n))
	return okReply(data)
}

func (m *MockHeadend) dataGet(payload []byte) Reply {
	q, err := protocol.ParseQuery(payload, true)
	if err != nil || q.To < q.From || q.To-q.From >= maxMockRange {
		return errorReply()
	}
	width, err := protocol.RecordWidth(q.Kind)
	if err != nil {
		return errorReply()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	var data []byte
	for id := q.From; ; id++ {
		rec := make([]byte, width)
		if r, ok := m.records[q.Kind][id]; ok {
			rec, _ = protocol.EncodeRecord(q.Kind, r)
		}
		data = append(data, rec...)
		if id == q.To {
			break
		}
	}
	return okReply(data)
}

func (m *MockHeadend) dataSet(payload []byte) Reply {
	kind, id, rec, err := protocol.ParseDataSet(payload)
	if err != nil {
		return errorReply()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.putRecord(kind, id, rec)
	return okReply(nil)
}

func (m *MockHeadend) find(payload []byte) Reply {
	kind, _, query, err := protocol.ParseFind(payload)
	if err != nil || !kind.Known() {
		return errorReply()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []uint32
	for id, r := range m.records[kind] {
		if strings.Contains(recordText(r), query) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return okReply(protocol.EncodeIDs(ids))
}

func (m *MockHeadend) deleteEPG(payload []byte) Reply {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(payload) == 0 {
		delete(m.records, protocol.KindEPG)
		return okReply(nil)
	}
	if len(payload) != protocol.DateSize {
		return errorReply()
	}
	q, err := protocol.ParseQuery(append([]byte{byte(protocol.KindEPG), 0}, payload...), false)
	if err != nil {
		return errorReply()
	}
	for id, r := range m.records[protocol.KindEPG] {
		if e, ok := r.(*protocol.EPGEvent); ok && e.Date == *q.Date {
			delete(m.records[protocol.KindEPG], id)
		}
	}
	return okReply(nil)
}

func recordText(r protocol.Record) string {
	switch v := r.(type) {
	case *protocol.Subscriber:
		return v.Name + "\n" + v.Description
	case *protocol.Package:
		return v.Name
	case *protocol.LogEntry:
		return v.Message
	case *protocol.EPGEvent:
		return v.Title
	default:
		return ""
	}
}
