package runtime

import (
	"encoding/binary"
	"fmt"
	"time"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/durationpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/estuary/corestream/task"
)

// OperatorConfig is the opaque, typed wrapper a coordinator hands a task
// runner to construct one operator instance — the Go analogue of the
// teacher's protocols/flow convention of typed Go structs wrapping
// opaque protobuf-encoded bytes (TableDescriptor, CheckpointMetadata),
// and of Arroyo's per-kind typed OperatorConstructor::ConfigT.
type OperatorConfig struct {
	Info task.Info
	// Descriptor is an opaque, operator-kind-specific configuration blob
	// (a serialized join plan, a source connector's settings, ...).
	Descriptor []byte
	// CheckpointInterval governs how often a coordinator injects a
	// checkpoint barrier into this operator's source tasks.
	CheckpointInterval time.Duration
}

// CheckpointIntervalProto renders CheckpointInterval as the well-known
// protobuf Duration type, the wire shape a coordinator would actually
// transmit this field as.
func (c OperatorConfig) CheckpointIntervalProto() *durationpb.Duration {
	return durationpb.New(c.CheckpointInterval)
}

// EncodeOperatorConfig serializes cfg's wire-transmissible fields —
// Descriptor and CheckpointInterval — into the opaque byte contract of
// spec.md §6 ("a serialized operator configuration (opaque bytes plus
// typed descriptor) yields a boxed operator"). Descriptor is carried as a
// well-known wrapperspb.BytesValue and CheckpointInterval as a
// durationpb.Duration, each length-prefixed in turn, mirroring the
// teacher's length-prefixed proto.Unmarshal framing in
// go/connector/run.go's protoOutput.decode. Info travels out-of-band
// (it is task identity assigned by the coordinator, not part of the
// operator's own config) and is supplied separately to DecodeOperatorConfig.
func EncodeOperatorConfig(cfg OperatorConfig) ([]byte, error) {
	descBytes, err := proto.Marshal(wrapperspb.Bytes(cfg.Descriptor))
	if err != nil {
		return nil, fmt.Errorf("runtime: marshal descriptor: %w", err)
	}
	ivlBytes, err := proto.Marshal(cfg.CheckpointIntervalProto())
	if err != nil {
		return nil, fmt.Errorf("runtime: marshal checkpoint interval: %w", err)
	}

	buf := make([]byte, 0, 8+len(descBytes)+len(ivlBytes))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(descBytes)))
	buf = append(buf, descBytes...)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(ivlBytes)))
	buf = append(buf, ivlBytes...)
	return buf, nil
}

// DecodeOperatorConfig reverses EncodeOperatorConfig, reattaching info as
// the task identity the coordinator assigned this operator instance.
func DecodeOperatorConfig(info task.Info, wire []byte) (OperatorConfig, error) {
	desc, rest, err := readLengthPrefixed(wire)
	if err != nil {
		return OperatorConfig{}, fmt.Errorf("runtime: read descriptor: %w", err)
	}
	ivl, rest, err := readLengthPrefixed(rest)
	if err != nil {
		return OperatorConfig{}, fmt.Errorf("runtime: read checkpoint interval: %w", err)
	}
	if len(rest) != 0 {
		return OperatorConfig{}, fmt.Errorf("runtime: %d trailing bytes after operator config", len(rest))
	}

	var bv wrapperspb.BytesValue
	if err := proto.Unmarshal(desc, &bv); err != nil {
		return OperatorConfig{}, fmt.Errorf("runtime: unmarshal descriptor: %w", err)
	}
	var d durationpb.Duration
	if err := proto.Unmarshal(ivl, &d); err != nil {
		return OperatorConfig{}, fmt.Errorf("runtime: unmarshal checkpoint interval: %w", err)
	}

	return OperatorConfig{
		Info:               info,
		Descriptor:         bv.GetValue(),
		CheckpointInterval: d.AsDuration(),
	}, nil
}

func readLengthPrefixed(p []byte) (field, rest []byte, err error) {
	if len(p) < 4 {
		return nil, nil, fmt.Errorf("truncated length prefix")
	}
	n := binary.LittleEndian.Uint32(p[:4])
	p = p[4:]
	if uint64(len(p)) < uint64(n) {
		return nil, nil, fmt.Errorf("truncated field: want %d bytes, have %d", n, len(p))
	}
	return p[:n], p[n:], nil
}

// OperatorConstructor builds one Operator from its OperatorConfig,
// mirroring Arroyo's OperatorConstructor trait.
type OperatorConstructor func(cfg OperatorConfig) (Operator, error)

// Registry maps an operator-kind name to its constructor, so a task
// runner can build the operator a coordinator asked for without a
// compiled-in switch statement.
type Registry struct {
	constructors map[string]OperatorConstructor
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{constructors: make(map[string]OperatorConstructor)}
}

// Register associates kind with ctor, overwriting any prior registration.
func (r *Registry) Register(kind string, ctor OperatorConstructor) {
	r.constructors[kind] = ctor
}

// Build constructs the Operator registered under kind.
func (r *Registry) Build(kind string, cfg OperatorConfig) (Operator, error) {
	ctor, ok := r.constructors[kind]
	if !ok {
		return nil, fmt.Errorf("runtime: unknown operator kind %q", kind)
	}
	return ctor(cfg)
}

// BuildFromWire decodes a coordinator-transmitted operator config blob
// (as produced by EncodeOperatorConfig) and constructs the Operator
// registered under kind. This is the transport-facing counterpart to
// Build, for a coordinator that only has the opaque wire bytes of §6,
// not an already-decoded OperatorConfig.
func (r *Registry) BuildFromWire(kind string, info task.Info, wire []byte) (Operator, error) {
	cfg, err := DecodeOperatorConfig(info, wire)
	if err != nil {
		return nil, err
	}
	return r.Build(kind, cfg)
}
