package core_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/agentdb/organizer-go/pkg/core"
)

func TestOrganizerErrorFormat(t *testing.T) {
	err := &core.OrganizerError{
		Op:  "EvaluateImportance",
		Err: core.ErrNotFound,
	}
	assert.Equal(t, "organizer: EvaluateImportance: memory not found", err.Error())
}

func TestOrganizerErrorUnwrap(t *testing.T) {
	err := core.NewOrganizerError("ClusterMemories", core.ErrBusy)
	assert.ErrorIs(t, err, core.ErrBusy)

	var organizerErr *core.OrganizerError
	assert.ErrorAs(t, err, &organizerErr)
	assert.Equal(t, "ClusterMemories", organizerErr.Op)
}

func TestNewOrganizerErrorNil(t *testing.T) {
	assert.Nil(t, core.NewOrganizerError("AddMemory", nil))
}

func TestErrorCode(t *testing.T) {
	testCases := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, core.CodeOK},
		{"invalid argument", core.ErrInvalidArgument, core.CodeInvalidArgument},
		{"invalid config", core.ErrInvalidConfig, core.CodeInvalidArgument},
		{"not found", core.ErrNotFound, core.CodeNotFound},
		{"busy", core.ErrBusy, core.CodeBusy},
		{"cancelled", core.ErrCancelled, core.CodeCancelled},
		{"internal", core.ErrInternal, core.CodeInternal},
		{"unclassified", errors.New("something else"), core.CodeInternal},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, core.ErrorCode(tc.err))
		})
	}
}

func TestErrorCodeWrapped(t *testing.T) {
	err := core.NewOrganizerError("GetMemory",
		fmt.Errorf("%w: memory abc", core.ErrNotFound))
	assert.Equal(t, core.CodeNotFound, core.ErrorCode(err))

	cancelled := core.NewOrganizerError("ClusterMemories",
		fmt.Errorf("%w: %v", core.ErrCancelled, context.Canceled))
	assert.Equal(t, core.CodeCancelled, core.ErrorCode(cancelled))
}
