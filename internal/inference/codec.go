package inference

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"
)

// #region methods
const (
	codecGenerateMethod = "/triage.Codec/Generate"
	codecEmbedMethod    = "/triage.Codec/Embed"
)

// #endregion methods

// #region client-struct

// CodecBackend talks to a model-serving sidecar over gRPC. Requests and
// responses are google.protobuf.Struct so no generated stubs are needed.
//
//	Generate: {prompt, model} -> {text, model, certainty?, entropy?}
//	Embed:    {text, model}   -> {embedding: [number]}
type CodecBackend struct {
	conn   grpc.ClientConnInterface
	closer func() error
	model  string
}

// #endregion client-struct

// #region constructor

// DialCodec connects to the sidecar at addr. model is forwarded on every call.
func DialCodec(addr, model string) (*CodecBackend, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("grpc dial %s: %w", addr, err)
	}
	return &CodecBackend{conn: conn, closer: conn.Close, model: model}, nil
}

// NewCodecBackendWithConn uses an existing connection. Used for testing.
func NewCodecBackendWithConn(conn grpc.ClientConnInterface, model string) *CodecBackend {
	return &CodecBackend{conn: conn, model: model}
}

// Close shuts down the gRPC connection if this backend owns it.
func (c *CodecBackend) Close() error {
	if c.closer == nil {
		return nil
	}
	return c.closer()
}

// #endregion constructor

// #region generate

// Generate sends the rendered prompt to the sidecar.
func (c *CodecBackend) Generate(ctx context.Context, prompt string) (Output, error) {
	req, err := structpb.NewStruct(map[string]any{
		"prompt": prompt,
		"model":  c.model,
	})
	if err != nil {
		return Output{}, fmt.Errorf("build generate request: %w", err)
	}
	resp := &structpb.Struct{}
	if err := c.conn.Invoke(ctx, codecGenerateMethod, req, resp); err != nil {
		return Output{}, fmt.Errorf("generate rpc: %w", err)
	}

	fields := resp.GetFields()
	out := Output{
		Text:  fields["text"].GetStringValue(),
		Model: fields["model"].GetStringValue(),
	}
	if out.Model == "" {
		out.Model = c.model
	}
	if v, ok := fields["certainty"]; ok {
		if _, isNum := v.GetKind().(*structpb.Value_NumberValue); isNum {
			certainty := clamp01(v.GetNumberValue())
			out.Certainty = &certainty
		}
	}
	if v, ok := fields["entropy"]; ok {
		if _, isNum := v.GetKind().(*structpb.Value_NumberValue); isNum {
			entropy := v.GetNumberValue()
			out.Entropy = &entropy
		}
	}
	return out, nil
}

// #endregion generate

// #region embed

// Embed asks the sidecar for an embedding of text.
func (c *CodecBackend) Embed(ctx context.Context, text string) ([]float32, error) {
	req, err := structpb.NewStruct(map[string]any{
		"text":  text,
		"model": c.model,
	})
	if err != nil {
		return nil, fmt.Errorf("build embed request: %w", err)
	}
	resp := &structpb.Struct{}
	if err := c.conn.Invoke(ctx, codecEmbedMethod, req, resp); err != nil {
		return nil, fmt.Errorf("embed rpc: %w", err)
	}

	values := resp.GetFields()["embedding"].GetListValue().GetValues()
	if len(values) == 0 {
		return nil, fmt.Errorf("embed rpc: empty embedding")
	}
	vec := make([]float32, len(values))
	for i, v := range values {
		vec[i] = float32(v.GetNumberValue())
	}
	return vec, nil
}

// #endregion embed

func clamp01(v float64) float64 {
	return max(0, min(1, v))
}
