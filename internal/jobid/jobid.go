// Copyright 2025 Certen Protocol
//
// Package jobid implements the structured JobId spec.md calls "the sole
// name for every durable artifact in the pipeline" (§3, Glossary). It
// mirrors original_source's QProvingJobDataID (city_rollup_common/src/
// qworker), which keys every durable proof artifact by checkpoint id, a
// circuit-type discriminant, an index, and a tag.

package jobid

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
)

// Kind discriminates the requested-action circuit (or aggregator) a JobId
// belongs to, matching the planner's fixed global order in spec.md §4.2.
type Kind uint8

const (
	KindRegisterUser Kind = iota
	KindClaimDeposit
	KindL2Transfer
	KindAddWithdrawal
	KindProcessWithdrawal
	KindAddDeposit
	// KindAggregate marks a JobId that names a node of the binary
	// aggregation tree for a given Kind rather than a leaf op.
	KindAggregate
	// KindBlock marks the single final block proof JobId for a checkpoint.
	KindBlock
)

// Tag distinguishes the four durable artifact classes a JobId can name
// per spec.md §3: an op's circuit input, a produced proof, an aggregation
// node's linking record, or a raw request signature.
type Tag uint8

const (
	// TagInput names the serialized circuit input for a leaf op.
	TagInput Tag = iota
	// TagProof names the produced proof bytes for a leaf or aggregate node.
	TagProof
	// TagAggregation names an aggregation-tree node's linking record (its
	// two child JobIds and required aggregator fingerprint).
	TagAggregation
	// TagSignature names a raw signature blob the RPC processor persisted
	// for a request (spec.md §4.5), stored via the proof store's
	// get_bytes/set_bytes pair rather than get_proof/set_proof.
	TagSignature
)

// encodingVersion is the leading byte of every ID, reserved so the 24-byte
// layout can change without silently colliding with an older one.
const encodingVersion = 1

// Size is the fixed byte length of every JobId, per SPEC_FULL.md §6.
const Size = 24

// ID is the structured job identifier: checkpoint id, the kind of circuit
// it belongs to, a per-kind op index (or, for aggregation nodes built by
// AggregateForKind, the op kind the node belongs to), the aggregation
// level, the artifact tag,
// and the aggregation tree index within its level.
type ID struct {
	CheckpointID uint64
	Kind         Kind
	OpIndex      uint32
	Level        uint8
	Tag          Tag
	TreeIndex    uint64
}

// Leaf builds the JobId naming a single op's artifact at aggregation
// level 0 (a leaf of the binary aggregation tree), per spec.md §4.3
// "construct the complete binary tree of jobs" starting from leaf JobIds.
func Leaf(checkpoint uint64, kind Kind, opIndex uint32, tag Tag) ID {
	return ID{
		CheckpointID: checkpoint,
		Kind:         kind,
		OpIndex:      opIndex,
		Level:        0,
		Tag:          tag,
		TreeIndex:    uint64(opIndex),
	}
}

// Aggregate builds the JobId naming an internal aggregation-tree node at
// the given level and index within that level, with no op-kind of its own.
// AggregateForKind builds on it; the aggregation scheduler names all of its
// nodes, the cross-kind fold's included, through AggregateForKind.
func Aggregate(checkpoint uint64, level uint8, treeIndex uint64, tag Tag) ID {
	return ID{
		CheckpointID: checkpoint,
		Kind:         KindAggregate,
		Level:        level,
		Tag:          tag,
		TreeIndex:    treeIndex,
	}
}

// AggregateForKind builds the JobId naming an internal aggregation-tree
// node belonging to a specific op kind's own tree. The kind is smuggled
// into OpIndex's low byte since KindAggregate ids never use OpIndex for an
// op position.
func AggregateForKind(checkpoint uint64, kind Kind, level uint8, treeIndex uint64, tag Tag) ID {
	id := Aggregate(checkpoint, level, treeIndex, tag)
	id.OpIndex = uint32(kind)
	return id
}

// SourceKind recovers the op-kind an aggregation-node JobId's tree belongs
// to, the inverse of AggregateForKind's smuggling.
func (id ID) SourceKind() Kind {
	if id.Kind == KindAggregate {
		return Kind(id.OpIndex)
	}
	return id.Kind
}

// Block builds the JobId naming the single final block proof for a
// checkpoint.
func Block(checkpoint uint64) ID {
	return ID{CheckpointID: checkpoint, Kind: KindBlock, Tag: TagProof}
}

// Signature builds the JobId naming a raw signature blob the RPC
// processor persisted for one request, keyed by (rpc-node-id,
// checkpoint_id, kind, index) per spec.md §4.5. rpc-node-id disambiguates
// two RPC processor instances independently assigning the same per-kind
// index to different requests; it is folded into TreeIndex since the
// fixed-size ID has no dedicated field for it, and TagSignature keeps
// this id's bytes-namespace key distinct from the same (checkpoint,
// kind, index) coordinates' circuit-input or proof entries.
func Signature(checkpoint uint64, kind Kind, rpcNodeID uint64, index uint32) ID {
	return ID{
		CheckpointID: checkpoint,
		Kind:         kind,
		OpIndex:      index,
		Tag:          TagSignature,
		TreeIndex:    rpcNodeID,
	}
}

// Bytes serializes the ID to its fixed 24-byte encoding:
// version(1) ‖ checkpoint_id(8 BE) ‖ kind(1) ‖ op_index(4 BE) ‖ level(1) ‖
// tag(1) ‖ tree_index(8 BE).
func (id ID) Bytes() [Size]byte {
	var b [Size]byte
	b[0] = encodingVersion
	binary.BigEndian.PutUint64(b[1:9], id.CheckpointID)
	b[9] = byte(id.Kind)
	binary.BigEndian.PutUint32(b[10:14], id.OpIndex)
	b[14] = id.Level
	b[15] = byte(id.Tag)
	binary.BigEndian.PutUint64(b[16:24], id.TreeIndex)
	return b
}

// FromBytes parses the fixed 24-byte encoding back into an ID.
func FromBytes(b []byte) (ID, error) {
	if len(b) != Size {
		return ID{}, fmt.Errorf("jobid: expected %d bytes, got %d", Size, len(b))
	}
	if b[0] != encodingVersion {
		return ID{}, fmt.Errorf("jobid: unsupported encoding version %d", b[0])
	}
	return ID{
		CheckpointID: binary.BigEndian.Uint64(b[1:9]),
		Kind:         Kind(b[9]),
		OpIndex:      binary.BigEndian.Uint32(b[10:14]),
		Level:        b[14],
		Tag:          Tag(b[15]),
		TreeIndex:    binary.BigEndian.Uint64(b[16:24]),
	}, nil
}

// String hex-encodes the ID for use as both a KV-style key and a queue
// message payload key.
func (id ID) String() string {
	b := id.Bytes()
	return hex.EncodeToString(b[:])
}

// Parse is the inverse of String.
func Parse(s string) (ID, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return ID{}, fmt.Errorf("jobid: invalid hex %q: %w", s, err)
	}
	return FromBytes(b)
}

// CounterKey is the proof-store key for this id's fan-in counter, per
// spec.md §6 "Proof store keyspace: {JobId} -> bytes and {JobId}.counter ->
// u32".
func (id ID) CounterKey() string {
	return id.String() + ".counter"
}
