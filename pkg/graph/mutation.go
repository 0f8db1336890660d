package graph

const (
	// DocumentLabel marks every document root, including external placeholders
	DocumentLabel = "Document"
	// InternalLabel marks every node extracted from inside a document
	InternalLabel = "_Internal"
	// IDProperty is the identity key every node is merged on
	IDProperty = "_id"
	// TypeProperty stores the document type or schema label
	TypeProperty = "_type"
)

// MutationKind selects the statement shape
type MutationKind int

const (
	MutationCreate MutationKind = iota
	MutationUpdate
	MutationDelete
	MutationDeleteAll
)

func (k MutationKind) String() string {
	switch k {
	case MutationCreate:
		return "create"
	case MutationUpdate:
		return "update"
	case MutationDelete:
		return "delete"
	case MutationDeleteAll:
		return "delete_all"
	default:
		return "unknown"
	}
}

// Node is one node to upsert, keyed by its identity property
type Node struct {
	Key        string
	Label      string
	Properties map[string]any
}

// Edge connects two nodes by key
type Edge struct {
	From string
	To   string
	Type string
}

// Mutation is the full graph change for one document in one transaction.
// Create and Update carry the complete node/edge set; Delete needs only
// RootKey.
type Mutation struct {
	Kind     MutationKind
	RootKey  string
	Root     Node
	Children []Node
	// Containment edges run between nodes of this document
	Containment []Edge
	// External edges run from a node of this document to another document's root
	External []Edge
}

// ExternalTargets returns the distinct external target keys in edge order
func (m *Mutation) ExternalTargets() []string {
	seen := make(map[string]bool, len(m.External))
	targets := make([]string, 0, len(m.External))
	for _, e := range m.External {
		if seen[e.To] {
			continue
		}
		seen[e.To] = true
		targets = append(targets, e.To)
	}
	return targets
}
