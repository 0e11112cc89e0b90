package delivery

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTmuxTier(runner Runner, ancestors func(int) []int) *TmuxTier {
	t := NewTmuxTier(runner)
	t.delay = 0
	if ancestors != nil {
		t.ancestors = ancestors
	}
	return t
}

func TestTmuxFindPaneWalksAncestry(t *testing.T) {
	// Pane shell 300 is the grandparent of the session process 100.
	runner := newFakeRunner(func(argv []string) (string, error) {
		if argv[1] == "list-panes" {
			return "200 work %0\n300 main %1\n", nil
		}
		return "", nil
	})
	tier := newTestTmuxTier(runner, func(pid int) []int { return []int{100, 250, 300} })

	pane, err := tier.findPane(context.Background(), 100)

	require.NoError(t, err)
	assert.Equal(t, 300, pane.pid)
	assert.Equal(t, "main", pane.session)
	assert.Equal(t, "%1", pane.id)
}

func TestTmuxAvailable(t *testing.T) {
	tests := []struct {
		name      string
		pid       int
		tmuxGone  bool
		panes     string
		listErr   error
		available bool
	}{
		{"pane match", 100, false, "100 main %0\n", nil, true},
		{"tmux not installed", 100, true, "100 main %0\n", nil, false},
		{"no session pid", 0, false, "100 main %0\n", nil, false},
		{"no server running", 100, false, "", fmt.Errorf("no server running"), false},
		{"pid not in any pane", 100, false, "999 other %0\n", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := newFakeRunner(func(argv []string) (string, error) {
				return tt.panes, tt.listErr
			})
			runner.missing["tmux"] = tt.tmuxGone
			tier := newTestTmuxTier(runner, func(pid int) []int { return []int{pid} })

			got := tier.Available(context.Background(), Target{SessionPID: tt.pid})

			assert.Equal(t, tt.available, got)
		})
	}
}

func TestTmuxDeliverSendsSequence(t *testing.T) {
	runner := newFakeRunner(func(argv []string) (string, error) {
		if argv[1] == "list-panes" {
			return "100 main %2\n", nil
		}
		return "", nil
	})
	tier := newTestTmuxTier(runner, func(pid int) []int { return []int{pid} })

	err := tier.Deliver(context.Background(), Target{SessionPID: 100}, Sequence("keep going"))

	require.NoError(t, err)
	calls := runner.callStrings()
	require.Len(t, calls, 5) // list-panes plus four send-keys
	assert.Equal(t, "tmux send-keys -t %2 Escape", calls[1])
	assert.Equal(t, "tmux send-keys -t %2 C-u", calls[2])
	assert.Equal(t, "tmux send-keys -t %2 -l -- keep going", calls[3])
	assert.Equal(t, "tmux send-keys -t %2 Enter", calls[4])
}

func TestTmuxDeliverNoPane(t *testing.T) {
	runner := newFakeRunner(func(argv []string) (string, error) {
		return "999 other %0\n", nil
	})
	tier := newTestTmuxTier(runner, func(pid int) []int { return []int{pid} })

	err := tier.Deliver(context.Background(), Target{SessionPID: 100}, Sequence("go"))

	assert.ErrorIs(t, err, ErrTierUnavailable)
}

func TestTmuxDeliverSendFailure(t *testing.T) {
	runner := newFakeRunner(func(argv []string) (string, error) {
		if argv[1] == "list-panes" {
			return "100 main %0\n", nil
		}
		if len(argv) >= 5 && argv[4] == "C-u" {
			return "", fmt.Errorf("pane gone")
		}
		return "", nil
	})
	tier := newTestTmuxTier(runner, func(pid int) []int { return []int{pid} })

	err := tier.Deliver(context.Background(), Target{SessionPID: 100}, Sequence("go"))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "ctrl-u")
}

func TestTmuxListPanesSkipsMalformedLines(t *testing.T) {
	runner := newFakeRunner(func(argv []string) (string, error) {
		return "garbage\n100 main %0\nnot-a-pid x %9\n\n", nil
	})
	tier := newTestTmuxTier(runner, nil)

	panes, err := tier.listPanes(context.Background())

	require.NoError(t, err)
	require.Len(t, panes, 1)
	assert.Equal(t, 100, panes[0].pid)
}
