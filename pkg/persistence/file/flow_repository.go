package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/leadrun/leadrun/pkg/models"
	"github.com/leadrun/leadrun/pkg/persistence"
)

const flowsDir = "flows"

// Flows returns all stored flows sorted by creation time, newest first.
func (p *Persistence) Flows(_ context.Context) ([]*models.Flow, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	flows := make([]*models.Flow, 0)

	err := p.readEach(flowsDir, func(data []byte) error {
		var flow models.Flow

		err := json.Unmarshal(data, &flow)
		if err != nil {
			return fmt.Errorf("failed to decode flow: %w", err)
		}

		flows = append(flows, &flow)

		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(flows, func(i, j int) bool {
		return flows[i].CreatedAt.After(flows[j].CreatedAt)
	})

	return flows, nil
}

// FlowByID returns one flow.
func (p *Persistence) FlowByID(_ context.Context, id string) (*models.Flow, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var flow models.Flow

	err := p.read(flowsDir, id, &flow)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, persistence.NewFlowError("FlowByID", id, persistence.ErrFlowNotFound)
		}

		return nil, persistence.NewFlowError("FlowByID", id, err)
	}

	return &flow, nil
}

// FlowsByTrigger returns the active flows bound to the given trigger.
func (p *Persistence) FlowsByTrigger(ctx context.Context, trigger models.FlowTrigger) ([]*models.Flow, error) {
	flows, err := p.Flows(ctx)
	if err != nil {
		return nil, err
	}

	matched := make([]*models.Flow, 0)

	for _, flow := range flows {
		if flow.IsActive && flow.Trigger == trigger {
			matched = append(matched, flow)
		}
	}

	return matched, nil
}

// SaveFlow writes a flow to disk.
func (p *Persistence) SaveFlow(_ context.Context, flow *models.Flow) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if flow.CreatedAt.IsZero() {
		flow.CreatedAt = time.Now().UTC()
	}

	flow.UpdatedAt = time.Now().UTC()

	err := p.write(flowsDir, flow.ID, flow)
	if err != nil {
		return persistence.NewFlowError("SaveFlow", flow.ID, err)
	}

	return nil
}

// IncrementFlowExecutions increments the executions count under the store
// lock, so concurrent runs never lose an increment.
func (p *Persistence) IncrementFlowExecutions(_ context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var flow models.Flow

	err := p.read(flowsDir, id, &flow)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return persistence.NewFlowError("IncrementFlowExecutions", id, persistence.ErrFlowNotFound)
		}

		return persistence.NewFlowError("IncrementFlowExecutions", id, err)
	}

	flow.ExecutionsCount++

	err = p.write(flowsDir, id, &flow)
	if err != nil {
		return persistence.NewFlowError("IncrementFlowExecutions", id, err)
	}

	return nil
}
