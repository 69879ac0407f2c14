package inference

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// #region mock
type mockConn struct {
	grpc.ClientConnInterface

	resp *structpb.Struct
	err  error

	method string
	req    *structpb.Struct
}

func (m *mockConn) Invoke(_ context.Context, method string, args, reply any, _ ...grpc.CallOption) error {
	m.method = method
	m.req = args.(*structpb.Struct)
	if m.err != nil {
		return m.err
	}
	proto.Merge(reply.(proto.Message), m.resp)
	return nil
}

func mustStruct(t *testing.T, m map[string]any) *structpb.Struct {
	t.Helper()
	s, err := structpb.NewStruct(m)
	require.NoError(t, err)
	return s
}

// #endregion mock

func TestCodecGenerate_Success(t *testing.T) {
	conn := &mockConn{resp: mustStruct(t, map[string]any{
		"text":      "use a buffered channel",
		"certainty": 1.4,
		"entropy":   0.2,
	})}
	c := NewCodecBackendWithConn(conn, "small-7b")

	out, err := c.Generate(context.Background(), "how do I fan out?")
	require.NoError(t, err)
	assert.Equal(t, codecGenerateMethod, conn.method)
	assert.Equal(t, "how do I fan out?", conn.req.GetFields()["prompt"].GetStringValue())
	assert.Equal(t, "small-7b", conn.req.GetFields()["model"].GetStringValue())

	assert.Equal(t, "use a buffered channel", out.Text)
	assert.Equal(t, "small-7b", out.Model)
	require.NotNil(t, out.Certainty)
	assert.Equal(t, 1.0, *out.Certainty, "certainty is clamped")
	require.NotNil(t, out.Entropy)
	assert.InDelta(t, 0.2, *out.Entropy, 1e-9)
}

func TestCodecGenerate_NoCertainty(t *testing.T) {
	conn := &mockConn{resp: mustStruct(t, map[string]any{"text": "ok", "certainty": "high"})}
	out, err := NewCodecBackendWithConn(conn, "m").Generate(context.Background(), "p")
	require.NoError(t, err)
	assert.Nil(t, out.Certainty, "non-numeric certainty is ignored")
}

func TestCodecGenerate_Error(t *testing.T) {
	conn := &mockConn{err: errors.New("unavailable")}
	_, err := NewCodecBackendWithConn(conn, "m").Generate(context.Background(), "p")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "generate rpc")
}

func TestCodecEmbed(t *testing.T) {
	conn := &mockConn{resp: mustStruct(t, map[string]any{"embedding": []any{0.5, -0.25, 1.0}})}
	vec, err := NewCodecBackendWithConn(conn, "embed").Embed(context.Background(), "text")
	require.NoError(t, err)
	assert.Equal(t, codecEmbedMethod, conn.method)
	assert.Equal(t, []float32{0.5, -0.25, 1}, vec)
}

func TestCodecEmbed_Empty(t *testing.T) {
	conn := &mockConn{resp: mustStruct(t, map[string]any{})}
	_, err := NewCodecBackendWithConn(conn, "embed").Embed(context.Background(), "text")
	assert.Error(t, err)
}

func TestDialCodec(t *testing.T) {
	c, err := DialCodec("localhost:0", "m")
	require.NoError(t, err)
	assert.NoError(t, c.Close())
}
