package ops

import (
	"context"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/hpungsan/kayko/internal/errors"
	"github.com/hpungsan/kayko/internal/form"
	"github.com/hpungsan/kayko/internal/store"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// FormSaveInput contains parameters for the FormSave operation.
type FormSaveInput struct {
	Form form.Descriptor
}

// FormSaveOutput contains the result of the FormSave operation.
type FormSaveOutput struct {
	Key     string `json:"key"`
	Saved   bool   `json:"saved"`
	Removed bool   `json:"removed"`
	Fields  int    `json:"fields"`
}

// FormSave snapshots a form. A form without user input removes its saved
// entry instead.
func FormSave(ctx context.Context, st *store.Store, input FormSaveInput) (*FormSaveOutput, error) {
	if err := validate.Struct(input.Form); err != nil {
		return nil, errors.NewInvalidRequest(err.Error())
	}

	key, snap, ok := form.Build(input.Form, st.Now())
	out := &FormSaveOutput{Key: key, Saved: ok, Fields: len(snap.Fields)}

	err := st.UpdateForms(ctx, func(forms map[string]form.Snapshot) (bool, error) {
		if !ok {
			if _, exists := forms[key]; !exists {
				return false, nil
			}
			delete(forms, key)
			out.Removed = true
			return true, nil
		}
		forms[key] = snap
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// FormSummary describes a saved form without its field values.
type FormSummary struct {
	Key       string `json:"key"`
	FormID    string `json:"form_id"`
	URL       string `json:"url"`
	Timestamp int64  `json:"timestamp"`
	Fields    int    `json:"fields"`
}

// FormListInput contains parameters for the FormList operation.
type FormListInput struct {
	Prefix string // optional; storage key prefix (origin+path)
	Limit  int
	Offset int
}

// FormListOutput contains the result of the FormList operation.
type FormListOutput struct {
	Items      []FormSummary `json:"items"`
	Pagination Pagination    `json:"pagination"`
}

// FormList returns saved form snapshots, most recent first.
func FormList(ctx context.Context, st *store.Store, input FormListInput) (*FormListOutput, error) {
	forms, err := st.Forms(ctx)
	if err != nil {
		return nil, err
	}

	items := make([]FormSummary, 0, len(forms))
	for key, snap := range forms {
		if input.Prefix != "" && !strings.HasPrefix(key, input.Prefix) {
			continue
		}
		items = append(items, FormSummary{
			Key:       key,
			FormID:    snap.FormID,
			URL:       snap.URL,
			Timestamp: snap.Timestamp,
			Fields:    len(snap.Fields),
		})
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].Timestamp != items[j].Timestamp {
			return items[i].Timestamp > items[j].Timestamp
		}
		return items[i].Key < items[j].Key
	})

	page, pagination := paginate(items, input.Limit, input.Offset, DefaultFormLimit)
	return &FormListOutput{Items: page, Pagination: pagination}, nil
}

// FormKeyInput addresses a saved form either by storage key or by the
// descriptor of the form on the page.
type FormKeyInput struct {
	Key  string
	Form *form.Descriptor
}

func (in FormKeyInput) resolve() (string, error) {
	key := strings.TrimSpace(in.Key)
	hasForm := in.Form != nil
	if key != "" && hasForm {
		return "", errors.NewInvalidRequest("specify either key or form, not both")
	}
	if hasForm {
		if err := validate.Struct(in.Form); err != nil {
			return "", errors.NewInvalidRequest(err.Error())
		}
		return form.StorageKey(*in.Form), nil
	}
	if key == "" {
		return "", errors.NewInvalidRequest("key is required")
	}
	return key, nil
}

// FormGetOutput contains the result of the FormGet operation.
type FormGetOutput struct {
	Key string `json:"key"`
	form.Snapshot
}

// FormGet returns a saved snapshot for restoring a form.
func FormGet(ctx context.Context, st *store.Store, input FormKeyInput) (*FormGetOutput, error) {
	key, err := input.resolve()
	if err != nil {
		return nil, err
	}
	forms, err := st.Forms(ctx)
	if err != nil {
		return nil, err
	}
	snap, ok := forms[key]
	if !ok {
		return nil, errors.NewNotFound(key)
	}
	return &FormGetOutput{Key: key, Snapshot: snap}, nil
}

// FormDeleteOutput contains the result of the FormDelete operation.
type FormDeleteOutput struct {
	Key     string `json:"key"`
	Deleted bool   `json:"deleted"`
}

// FormDelete removes a saved snapshot.
func FormDelete(ctx context.Context, st *store.Store, input FormKeyInput) (*FormDeleteOutput, error) {
	key, err := input.resolve()
	if err != nil {
		return nil, err
	}
	err = st.UpdateForms(ctx, func(forms map[string]form.Snapshot) (bool, error) {
		if _, ok := forms[key]; !ok {
			return false, errors.NewNotFound(key)
		}
		delete(forms, key)
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return &FormDeleteOutput{Key: key, Deleted: true}, nil
}
