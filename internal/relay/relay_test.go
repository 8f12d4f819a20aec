package relay

import (
	"bytes"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWriteReadFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, StreamFrame{Opcode: OpStreamData, Payload: []byte("hello")}))

	frame, err := ReadFrame(&buf)
	require.NoError(t, err)
	require.Equal(t, OpStreamData, frame.Opcode)
	require.Equal(t, []byte("hello"), frame.Payload)
}

func TestWriteDataHelper(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteData(&buf, []byte("chunk")))

	frame, err := ReadFrame(&buf)
	require.NoError(t, err)
	require.Equal(t, OpStreamData, frame.Opcode)
	require.Equal(t, []byte("chunk"), frame.Payload)
}

func TestReadFrameRejectsOversizedPayload(t *testing.T) {
	var buf bytes.Buffer
	header := []byte{OpStreamData, 0xFF, 0xFF, 0xFF, 0xFF}
	buf.Write(header)

	_, err := ReadFrame(&buf)
	require.Error(t, err)
}

func TestEncodeDecodeResizeRoundTrip(t *testing.T) {
	payload := EncodeResize(120, 40)
	cols, rows, err := DecodeResize(payload)
	require.NoError(t, err)
	require.Equal(t, uint16(120), cols)
	require.Equal(t, uint16(40), rows)
}

func TestDecodeResizeRejectsWrongLength(t *testing.T) {
	_, _, err := DecodeResize([]byte{1, 2, 3})
	require.Error(t, err)
}

type fakeWriter struct {
	data    []byte
	resized bool
	cols    uint16
	rows    uint16
	closed  bool
}

func (f *fakeWriter) SendData(id string, data []byte) bool {
	f.data = append(f.data, data...)
	return true
}

func (f *fakeWriter) Resize(id string, cols, rows uint16) bool {
	f.resized = true
	f.cols = cols
	f.rows = rows
	return true
}

func (f *fakeWriter) Close(id string) bool {
	f.closed = true
	return true
}

func TestPumpStreamAppliesDataAndResizeThenStopsOnClose(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	w := &fakeWriter{}
	done := make(chan struct{})
	go func() {
		PumpStream(server, "term-1", w)
		close(done)
	}()

	require.NoError(t, WriteFrame(client, StreamFrame{Opcode: OpStreamData, Payload: []byte("ls\n")}))
	require.NoError(t, WriteFrame(client, StreamFrame{Opcode: OpStreamResize, Payload: EncodeResize(100, 30)}))
	require.NoError(t, WriteFrame(client, StreamFrame{Opcode: OpStreamClose}))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("PumpStream did not return after OpStreamClose")
	}

	require.Equal(t, []byte("ls\n"), w.data)
	require.True(t, w.resized)
	require.Equal(t, uint16(100), w.cols)
	require.Equal(t, uint16(30), w.rows)
	require.True(t, w.closed)
}

func TestPumpStreamIgnoresUnknownOpcodeAndKeepsReading(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	w := &fakeWriter{}
	done := make(chan struct{})
	go func() {
		PumpStream(server, "term-1", w)
		close(done)
	}()

	require.NoError(t, WriteFrame(client, StreamFrame{Opcode: 0xEE, Payload: []byte("ignored")}))
	require.NoError(t, WriteFrame(client, StreamFrame{Opcode: OpStreamData, Payload: []byte("ok")}))
	require.NoError(t, WriteFrame(client, StreamFrame{Opcode: OpStreamClose}))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("PumpStream did not return after OpStreamClose")
	}

	require.Equal(t, []byte("ok"), w.data)
}

func TestPumpStreamReturnsWhenStreamCloses(t *testing.T) {
	client, server := net.Pipe()

	w := &fakeWriter{}
	done := make(chan struct{})
	go func() {
		PumpStream(server, "term-1", w)
		close(done)
	}()

	client.Close()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("PumpStream did not return after client closed")
	}
	require.False(t, w.closed)
}

func TestSessionCloseIsIdempotentAndFiresOnCloseOnce(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()

	srv, err := NewServerSession(serverConn)
	require.NoError(t, err)

	var fired int
	srv.SetOnClose(func() { fired++ })

	require.NoError(t, srv.Close())
	require.NoError(t, srv.Close())
	require.Equal(t, 1, fired)
}
