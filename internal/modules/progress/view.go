// README: Wire projection of the aggregate used by driverStagesUpdated and HTTP responses.
package progress

import (
	"encoding/json"
	"time"

	"flashfood/internal/types"
)

type StageView struct {
	State     StateKey     `json:"state"`
	Status    StageStatus  `json:"status"`
	Timestamp int64        `json:"timestamp"`
	Duration  int64        `json:"duration"`
	Details   StageDetails `json:"details"`
}

type View struct {
	ID            types.ID    `json:"id"`
	DriverID      types.ID    `json:"driver_id"`
	CurrentState  StateKey    `json:"current_state"`
	PreviousState *StateKey   `json:"previous_state"`
	NextState     *StateKey   `json:"next_state"`
	TotalTips     int64       `json:"total_tips"`
	Stages        []StageView `json:"stages"`
	Orders        []types.ID  `json:"orders"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

// View flattens slots into the ordered {stage}_order_{n} list.
func (a *Aggregate) View() View {
	v := View{
		ID:            a.ID,
		DriverID:      a.DriverID,
		CurrentState:  a.CurrentState,
		PreviousState: keyPtr(a.PreviousState),
		NextState:     keyPtr(a.NextState),
		TotalTips:     a.TotalTips.Amount,
		Stages:        make([]StageView, 0, len(a.Slots)*stageCount),
		Orders:        a.OrderIDs(),
		CreatedAt:     a.CreatedAt,
		UpdatedAt:     a.UpdatedAt,
	}
	for _, s := range a.Slots {
		for _, rec := range s.Stages {
			sv := StageView{
				State:    KeyOf(rec.Stage, s.Index),
				Status:   rec.Status,
				Duration: int64(rec.Duration / time.Second),
				Details:  rec.Details,
			}
			if !rec.Timestamp.IsZero() {
				sv.Timestamp = rec.Timestamp.Unix()
			}
			v.Stages = append(v.Stages, sv)
		}
	}
	return v
}

func (a *Aggregate) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.View())
}

func keyPtr(k StateKey) *StateKey {
	if k == "" {
		return nil
	}
	return &k
}
