package generator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/seminarlabs/seminar-core/internal/persona"
)

type mockGenerator struct{}

// NewMockGenerator returns a deterministic backend for development and
// tests. It emits a framed transcript cycling through the synthetic roster,
// so the full parse path is exercised.
func NewMockGenerator() Generator { return &mockGenerator{} }

func (m *mockGenerator) Complete(ctx context.Context, req Request) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-time.After(20 * time.Millisecond):
	}

	synthetics := req.Roster.Synthetics()
	if len(synthetics) == 0 {
		return "", nil
	}
	count := req.MaxDrafts
	if count <= 0 || count > 4 {
		count = 4
	}

	topic := strings.TrimSpace(req.ChapterTitle)
	var b strings.Builder
	for i := 0; i < count; i++ {
		p := synthetics[i%len(synthetics)]
		body := fmt.Sprintf("[mock %s remark %d on %s]", p.Role, i+1, topic)
		if req.UserMessage != nil && i == 0 && p.Role == persona.RoleTeacher {
			body = fmt.Sprintf("[mock teacher reply to %q]", req.UserMessage.Body)
		}
		fmt.Fprintf(&b, "##MESSAGE##\n##PERSONA##%s|%s##PERSONA##\n##BODY##%s##BODY##\n##MESSAGE##\n\n",
			p.PersonaID, p.Name, body)
	}
	return b.String(), nil
}
