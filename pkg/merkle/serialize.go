package merkle

import (
	"encoding/json"
	"fmt"

	"github.com/0xlemi/structdb/pkg/value"
)

// Serialize returns the exact bytes stored in the object store under a
// node's hash. These are the same canonical bytes the node's Hash() was
// computed over (leafWire / internalWire), so storage never duplicates
// the hashing logic and a corrupted byte is always detectable by
// recomputing the hash of what was read (spec.md §4.1 "Rebuild").
func Serialize(n Node) ([]byte, error) {
	switch t := n.(type) {
	case Leaf:
		return canonicalEncode(leafWire{Type: t.Type, Value: value.ToAny(t.Value)})
	case Internal:
		children := make(map[string]string, len(t.Children))
		for k, h := range t.Children {
			children[k] = h.String()
		}
		return canonicalEncode(internalWire{Type: t.Type, Children: children})
	default:
		return nil, fmt.Errorf("merkle: unknown node type %T", n)
	}
}

// Deserialize parses bytes previously produced by Serialize back into a
// Node. Dispatch between Leaf and Internal is by the "type" discriminator:
// null/boolean/number/string are leaves, object/array are internal nodes.
func Deserialize(data []byte) (Node, error) {
	var probe struct {
		Type     string          `json:"type"`
		Value    json.RawMessage `json:"value"`
		Children map[string]string `json:"children"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("merkle: malformed node: %w", err)
	}

	switch probe.Type {
	case typeNull, typeBoolean, typeNumber, typeString:
		var raw any
		if len(probe.Value) > 0 {
			if err := json.Unmarshal(probe.Value, &raw); err != nil {
				return nil, fmt.Errorf("merkle: malformed leaf value: %w", err)
			}
		}
		v, err := value.FromAny(raw)
		if err != nil {
			return nil, fmt.Errorf("merkle: malformed leaf value: %w", err)
		}
		return Leaf{Type: probe.Type, Value: v}, nil
	case typeObject, typeArray, typeShardObject, typeShardArray, typeShard:
		children := make(map[string]Hash, len(probe.Children))
		for k, hexHash := range probe.Children {
			h, err := HashFromHex(hexHash)
			if err != nil {
				return nil, fmt.Errorf("merkle: malformed child hash: %w", err)
			}
			children[k] = h
		}
		return Internal{Type: probe.Type, Children: children}, nil
	default:
		return nil, fmt.Errorf("merkle: unknown node type tag %q", probe.Type)
	}
}
