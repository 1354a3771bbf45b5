package dag

import (
	"errors"

	taskerrors "github.com/kbukum/taskflow/errors"
)

// ToAppError maps dag errors to application error codes. Errors it does
// not recognize become INTERNAL_ERROR.
func ToAppError(err error) *taskerrors.AppError {
	if err == nil {
		return nil
	}
	if appErr, ok := taskerrors.AsAppError(err); ok {
		return appErr
	}

	var verrs ValidationErrors
	if errors.As(err, &verrs) {
		problems := make([]string, len(verrs))
		for i, e := range verrs {
			problems[i] = e.Error()
		}
		return taskerrors.InvalidGraph(err.Error()).WithDetail("problems", problems).WithCause(err)
	}

	var (
		cycle    *CycleError
		dangling *DanglingEdgeError
		dup      *DuplicateIDError
		unknown  *UnknownReferenceError
		invalid  *InvalidNodeError
		resolve  *ResolutionError
		pathErr  *PathError
	)
	switch {
	case errors.As(err, &cycle):
		return taskerrors.CycleDetected(cycle.Path).WithCause(err)
	case errors.As(err, &dangling):
		return taskerrors.DanglingEdge(dangling.Edge.Source, dangling.Edge.Target).WithCause(err)
	case errors.As(err, &dup):
		return taskerrors.DuplicateID(dup.ID).WithCause(err)
	case errors.As(err, &unknown):
		return taskerrors.InvalidGraph(unknown.Error()).
			WithDetails(map[string]any{"node_id": unknown.NodeID, "reference": unknown.Ref}).
			WithCause(err)
	case errors.As(err, &invalid):
		return taskerrors.InvalidGraph(invalid.Error()).WithCause(err)
	case errors.As(err, &resolve):
		return taskerrors.UnresolvedReference(resolve.NodeID, resolve.Ref).WithCause(err)
	case errors.As(err, &pathErr):
		return taskerrors.InvalidInput(pathErr.NodeID, pathErr.Error()).WithCause(err)
	case errors.Is(err, ErrUnknownOverride), errors.Is(err, ErrNoPriorOutput):
		return taskerrors.InvalidInput("overrides", err.Error()).WithCause(err)
	case errors.Is(err, ErrRunNotFinished):
		return taskerrors.Conflict(err.Error()).WithCause(err)
	}
	return taskerrors.Internal(err)
}
