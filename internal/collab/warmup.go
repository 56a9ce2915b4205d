package collab

// Fields of a canvas document.
const (
	TitleField = "title"
	NodesField = "nodes"
	EdgesField = "edges"
)

// WarmUp inserts a placeholder node into the nodes field and deletes it in the
// same transaction. After it runs, a fresh canvas document carries an empty
// nodes array instead of no nodes field at all, so the first client to join
// sees the same shape as every later one.
func WarmUp(tx *Txn) {
	pos := tx.Len(NodesField)
	tx.InsertNodes(NodesField, pos, map[string]any{"id": "warmup", "type": "placeholder"})
	tx.DeleteNodes(NodesField, pos, 1)
}
