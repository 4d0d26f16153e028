package cluster

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/corert/corert/internal/task"
)

func roundTrip(t *testing.T, msg Message) Message {
	t.Helper()
	body, err := Encode(msg)
	require.NoError(t, err)

	decoded, err := Decode(msg.Kind(), msg.ID(), body)
	require.NoError(t, err)
	return decoded
}

func TestTaskNewMessageRoundTrips(t *testing.T) {
	pcid, err := PayloadCID([]byte("some-task-payload"))
	require.NoError(t, err)

	orig := &TaskNewMessage{
		header:               header{kind: KindTaskNew, id: NewMessageID(2, 7)},
		RemoteTaskID:         uuid.New(),
		Label:                "compute",
		Args:                 []byte{1, 2, 3, 4},
		NamespacePredecessor: uuid.New(),
		PayloadCID:           pcid,
		Accesses: []AccessDescriptor{
			{Start: 100, Size: 64, Type: task.In, Weak: false, ReadSatisfied: true},
			{Start: 200, Size: 32, Type: task.Out, Weak: true, ReadSatisfied: true, WriteSatisfied: true},
		},
	}

	decoded := roundTrip(t, orig)
	got, ok := decoded.(*TaskNewMessage)
	require.True(t, ok)

	require.Equal(t, orig.RemoteTaskID, got.RemoteTaskID)
	require.Equal(t, orig.Label, got.Label)
	require.Equal(t, orig.Args, got.Args)
	require.Equal(t, orig.NamespacePredecessor, got.NamespacePredecessor)
	require.True(t, orig.PayloadCID.Equals(got.PayloadCID))
	require.Equal(t, orig.Accesses, got.Accesses)
	require.Equal(t, KindTaskNew, got.Kind())
	require.Equal(t, orig.ID(), got.ID())
}

func TestTaskFinishedMessageRoundTrips(t *testing.T) {
	orig := &TaskFinishedMessage{
		header:       header{kind: KindTaskFinished, id: NewMessageID(1, 3)},
		RemoteTaskID: uuid.New(),
		Err:          "boom",
	}

	decoded := roundTrip(t, orig)
	got, ok := decoded.(*TaskFinishedMessage)
	require.True(t, ok)
	require.Equal(t, orig.RemoteTaskID, got.RemoteTaskID)
	require.Equal(t, orig.Err, got.Err)
}

func TestTaskFinishedMessageRoundTripsWithEmptyErr(t *testing.T) {
	orig := &TaskFinishedMessage{
		header:       header{kind: KindTaskFinished, id: NewMessageID(1, 3)},
		RemoteTaskID: uuid.New(),
	}
	decoded := roundTrip(t, orig)
	got := decoded.(*TaskFinishedMessage)
	require.Empty(t, got.Err)
}

func TestSatisfiabilityMessageRoundTripsWithLocation(t *testing.T) {
	orig := &SatisfiabilityMessage{
		header:         header{kind: KindSatisfiability, id: NewMessageID(0, 1)},
		RemoteTaskID:   uuid.New(),
		AccessIndex:    2,
		ReadSatisfied:  true,
		WriteSatisfied: false,
		ConcurrentOK:   true,
		CommutativeOK:  false,
		HasLocation:    true,
		Location:       task.MemoryPlace{NodeID: 4, Label: "dsm-4"},
		WriteID:        99,
	}

	decoded := roundTrip(t, orig)
	got := decoded.(*SatisfiabilityMessage)
	require.Equal(t, *orig, *got)
}

func TestSatisfiabilityMessageRoundTripsWithoutLocation(t *testing.T) {
	orig := &SatisfiabilityMessage{
		header:       header{kind: KindSatisfiability, id: NewMessageID(0, 1)},
		RemoteTaskID: uuid.New(),
		AccessIndex:  0,
		HasLocation:  false,
	}

	decoded := roundTrip(t, orig)
	got := decoded.(*SatisfiabilityMessage)
	require.False(t, got.HasLocation)
	require.Equal(t, task.MemoryPlace{}, got.Location)
}

func TestRemoteAccessReleaseMessageRoundTrips(t *testing.T) {
	orig := &RemoteAccessReleaseMessage{
		header:       header{kind: KindRemoteAccessRelease, id: NewMessageID(3, 5)},
		RemoteTaskID: uuid.New(),
		AccessIndex:  7,
	}

	decoded := roundTrip(t, orig)
	got := decoded.(*RemoteAccessReleaseMessage)
	require.Equal(t, orig.RemoteTaskID, got.RemoteTaskID)
	require.Equal(t, orig.AccessIndex, got.AccessIndex)
}

func TestDataRawMessageIsPassthroughPayload(t *testing.T) {
	orig := &DataRawMessage{
		header:  header{kind: KindDataRaw, id: NewMessageID(0, 1)},
		Payload: []byte("raw-bytes"),
	}

	body, err := Encode(orig)
	require.NoError(t, err)
	require.Equal(t, orig.Payload, body)

	decoded, err := Decode(KindDataRaw, orig.ID(), body)
	require.NoError(t, err)
	got := decoded.(*DataRawMessage)
	require.Equal(t, orig.Payload, got.Payload)
}

func TestDecodeUnknownKindErrors(t *testing.T) {
	_, err := Decode(MessageKind(200), NewMessageID(0, 0), nil)
	require.Error(t, err)
}

func TestEncodeUnencodableTypeErrors(t *testing.T) {
	_, err := Encode(header{kind: KindTaskNew, id: NewMessageID(0, 0)})
	require.Error(t, err)
}

func TestDecodeTruncatedBodyErrors(t *testing.T) {
	orig := &TaskNewMessage{
		header:       header{kind: KindTaskNew, id: NewMessageID(0, 0)},
		RemoteTaskID: uuid.New(),
		Label:        "x",
	}
	body, err := Encode(orig)
	require.NoError(t, err)

	_, err = Decode(KindTaskNew, orig.ID(), body[:len(body)-2])
	require.Error(t, err)
}

func TestMessageIDEncodesSenderRank(t *testing.T) {
	id := NewMessageID(7, 12345)
	require.Equal(t, 7, id.SenderRank())
}

func TestEncodeHeaderLayout(t *testing.T) {
	h := EncodeHeader(KindTaskNew, 42, 100)
	require.Len(t, h, 9)
	require.Equal(t, byte(KindTaskNew), h[0])
}

func TestPayloadCIDIsDeterministic(t *testing.T) {
	a, err := PayloadCID([]byte("same"))
	require.NoError(t, err)
	b, err := PayloadCID([]byte("same"))
	require.NoError(t, err)
	require.True(t, a.Equals(b))

	c, err := PayloadCID([]byte("different"))
	require.NoError(t, err)
	require.False(t, a.Equals(c))
}
