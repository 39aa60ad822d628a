package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoginInfo_RoundTrip(t *testing.T) {
	info := &LoginInfo{
		Salt: [SaltSize]byte{1, 2, 3, 4, 5, 6, 7, 8},
		Users: []LoginUser{
			{Name: "admin", Description: "Administrator"},
			{Name: "operator", Description: "Billing sync"},
		},
	}

	data := EncodeLoginInfo(info)
	require.Len(t, data, SaltSize+2*LoginUserSize)

	got, err := ParseLoginInfo(data)
	require.NoError(t, err)
	assert.Equal(t, info, got)
	assert.True(t, got.HasUser("operator"))
	assert.False(t, got.HasUser("root"))

	_, err = ParseLoginInfo(data[:SaltSize+10])
	assert.ErrorIs(t, err, ErrLengthMismatch)
	_, err = ParseLoginInfo(data[:4])
	assert.ErrorIs(t, err, ErrLengthMismatch)
}

func TestLoginTry(t *testing.T) {
	hash := [PasswordHashSize]byte{0xE7, 0x36}
	data := EncodeLoginTry("admin", hash)
	require.Len(t, data, LoginTrySize)
	assert.Equal(t, byte(0), data[5])

	user, got, err := ParseLoginTry(data)
	require.NoError(t, err)
	assert.Equal(t, "admin", user)
	assert.Equal(t, hash, got)
}

func TestSubscriberSet_Layout(t *testing.T) {
	mask, _ := MaskOf(3)
	data, err := EncodeSubscriberSet(SubscriberSet{From: 1, To: 0x0102, Priority: 7, Mask: mask})
	require.NoError(t, err)
	require.Len(t, data, SubscriberSetSize)

	assert.Equal(t, []byte{1, 0, 0, 0, 0x02, 0x01, 0, 0, 7, 0x08}, data[:10])

	req, err := ParseSubscriberSet(data)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x0102), req.To)
	assert.True(t, req.Mask.Has(3))

	_, err = EncodeSubscriberSet(SubscriberSet{From: 5, To: 4})
	assert.ErrorIs(t, err, ErrBadRange)
}

func TestParseMasks(t *testing.T) {
	a, _ := MaskOf(1)
	b, _ := MaskOf(2)
	data := append(a[:], b[:]...)

	masks, err := ParseMasks(data, 7, 8)
	require.NoError(t, err)
	assert.Equal(t, []Mask{a, b}, masks)

	_, err = ParseMasks(data, 7, 9)
	assert.ErrorIs(t, err, ErrLengthMismatch)
	_, err = ParseMasks(data, 8, 7)
	assert.ErrorIs(t, err, ErrLengthMismatch)
}

func TestQuery_RoundTrip(t *testing.T) {
	date := &Date{Year: 2026, Month: 10, Day: 18}

	data, err := EncodeTotals(Query{Kind: KindLog, Subtype: 1, Date: date})
	require.NoError(t, err)
	assert.Len(t, data, 2+DateSize)
	q, err := ParseQuery(data, false)
	require.NoError(t, err)
	assert.Equal(t, KindLog, q.Kind)
	assert.Equal(t, date, q.Date)

	data, err = EncodeDataGet(Query{Kind: KindSubscribers, From: 3, To: 9})
	require.NoError(t, err)
	assert.Len(t, data, 10)
	q, err = ParseQuery(data, true)
	require.NoError(t, err)
	assert.Equal(t, uint32(3), q.From)
	assert.Equal(t, uint32(9), q.To)
	assert.Nil(t, q.Date)

	_, err = EncodeDataGet(Query{Kind: KindSubscribers, From: 9, To: 3})
	assert.ErrorIs(t, err, ErrValidation)
	_, err = EncodeTotals(Query{Kind: DataKind(7)})
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestDataSet_RoundTrip(t *testing.T) {
	data, err := EncodeDataSet(KindPackages, 42, &Package{Name: "news", Flag: 1})
	require.NoError(t, err)
	require.Len(t, data, 5+PackageRecordSize)

	kind, id, rec, err := ParseDataSet(data)
	require.NoError(t, err)
	assert.Equal(t, KindPackages, kind)
	assert.Equal(t, uint32(42), id)
	assert.Equal(t, &Package{Name: "news", Flag: 1}, rec)
}

func TestFindAndIDs(t *testing.T) {
	data, err := EncodeFind(KindSubscribers, 0, "Petrov")
	require.NoError(t, err)
	kind, sub, query, err := ParseFind(data)
	require.NoError(t, err)
	assert.Equal(t, KindSubscribers, kind)
	assert.Equal(t, uint8(0), sub)
	assert.Equal(t, "Petrov", query)

	ids, err := ParseIDs(EncodeIDs([]uint32{1, 70000}))
	require.NoError(t, err)
	assert.Equal(t, []uint32{1, 70000}, ids)

	_, err = ParseIDs([]byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrLengthMismatch)
}

func TestVersion(t *testing.T) {
	v := Version{Major: 2, Minor: 5, Build: 1031, Text: "CAS head-end"}
	got, err := ParseVersion(EncodeVersion(v))
	require.NoError(t, err)
	assert.Equal(t, v, got)
	assert.Equal(t, "2.5.1031 (CAS head-end)", got.String())

	_, err = ParseVersion([]byte{1})
	assert.ErrorIs(t, err, ErrLengthMismatch)
}

func TestEncodeDate(t *testing.T) {
	assert.Empty(t, EncodeDate(nil))
	assert.Equal(t, []byte{0xEA, 0x07, 10, 18}, EncodeDate(&Date{Year: 2026, Month: 10, Day: 18}))
}
