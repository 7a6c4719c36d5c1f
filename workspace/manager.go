package workspace

import (
	"sync"

	"go.uber.org/zap"

	"github.com/BaSui01/cortexflow/types"
)

// Manager coordinates the global workspace and working memory so that a
// broadcast and its working-memory entry happen atomically with respect
// to other manager calls.
type Manager struct {
	Workspace *GlobalWorkspace
	WM        *WorkingMemory

	mu sync.Mutex
}

// NewManager wires a workspace and working memory together.
func NewManager(wsConfig Config, wmConfig WMConfig, logger *zap.Logger) *Manager {
	return &Manager{
		Workspace: New(wsConfig, logger),
		WM:        NewWorkingMemory(wmConfig),
	}
}

// BroadcastAndStore broadcasts an item and, when requested, stores it
// as a working-memory representation with priority = item confidence.
func (m *Manager) BroadcastAndStore(item types.BroadcastItem, storeInWM bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Workspace.Broadcast(item)
	if storeInWM {
		m.WM.Add(item.Text, item.Contributors, item.Confidence, map[string]any{
			"broadcast_id": item.ID,
			"speculative":  item.Speculative,
		})
	}
}

// View reports a coordinated snapshot of both stores.
func (m *Manager) View() map[string]any {
	return map[string]any{
		"global_workspace": m.Workspace.Stats(),
		"working_memory":   m.WM.Stats(),
	}
}
