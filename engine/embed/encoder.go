// Package embed maps corpus rows and queries to fixed-length vectors through
// an injected encoder.
package embed

import (
	"context"
	"fmt"
	"strings"

	"github.com/WessleyAI/issuesim/engine/domain"
)

// Encoder turns a batch of texts into one vector per text. A batch of one
// must produce the same vector as that text inside a larger batch.
type Encoder interface {
	Encode(ctx context.Context, texts []string) ([][]float32, error)
}

// EncoderFunc adapts a function to Encoder.
type EncoderFunc func(ctx context.Context, texts []string) ([][]float32, error)

// Encode calls f.
func (f EncoderFunc) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	return f(ctx, texts)
}

// TokenEncoder returns per-token hidden states: [text][token][dim].
type TokenEncoder interface {
	EncodeTokens(ctx context.Context, texts []string) ([][][]float32, error)
}

// Pooled adapts a TokenEncoder to Encoder using CLSPooling.
func Pooled(te TokenEncoder) Encoder {
	return &pooledEncoder{te: te}
}

type pooledEncoder struct {
	te TokenEncoder
}

func (p *pooledEncoder) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	hidden, err := p.te.EncodeTokens(ctx, texts)
	if err != nil {
		return nil, err
	}
	return CLSPooling(hidden)
}

// UseDevice forwards device selection to the wrapped encoder.
func (p *pooledEncoder) UseDevice(d Device) {
	if da, ok := p.te.(DeviceAware); ok {
		da.UseDevice(d)
	}
}

// CLSPooling takes the hidden state at position 0 (the classification
// token) of each text. It does not average over tokens.
func CLSPooling(hidden [][][]float32) ([][]float32, error) {
	out := make([][]float32, len(hidden))
	for i, tokens := range hidden {
		if len(tokens) == 0 {
			return nil, fmt.Errorf("embed: cls pooling: text %d has no token states", i)
		}
		out[i] = append([]float32(nil), tokens[0]...)
	}
	return out, nil
}

// Device is the compute backend an encoder should run on.
type Device string

const (
	DeviceAuto Device = "auto"
	DeviceCPU  Device = "cpu"
	DeviceGPU  Device = "gpu"
)

// DeviceAware encoders accept an explicit device.
type DeviceAware interface {
	UseDevice(Device)
}

// ResolveDevice normalises a configured device name.
func ResolveDevice(name string) (Device, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "auto":
		return DeviceAuto, nil
	case "cpu":
		return DeviceCPU, nil
	case "gpu", "cuda":
		return DeviceGPU, nil
	default:
		return "", domain.NewValidationError("device", name, domain.ErrUnsupportedDevice)
	}
}
