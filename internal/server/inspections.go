package server

import (
	"bytes"
	"context"
	"fmt"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"sidekick/internal/checklist"
	"sidekick/internal/domain"
	"sidekick/internal/engine"
	"sidekick/internal/report"
	"sidekick/internal/voice"
)

type inspectionPath struct {
	InspectionID string `path:"inspection_id"`
}

type itemPath struct {
	InspectionID string `path:"inspection_id"`
	ItemID       string `path:"item_id"`
}

type reportOutput struct {
	ContentType        string `header:"Content-Type"`
	ContentDisposition string `header:"Content-Disposition"`
	Body               []byte
}

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

var checklistErrors = []int{
	http.StatusBadRequest,
	http.StatusUnauthorized,
	http.StatusForbidden,
	http.StatusNotFound,
	http.StatusConflict,
	http.StatusUnprocessableEntity,
}

func registerInspections(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "start-inspection",
		Method:        http.MethodPost,
		Path:          "/inspections",
		Summary:       "Start or resume an inspection",
		Description:   "Builds the checklist from the equipment profile. An inspection the caller already has open on the unit is returned with resumed=true.",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Body StartInspectionRequest
	}) (*output[StartInspectionResponse], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		in, resumed, err := e.StartInspection(ctx, input.Body.EquipmentID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(StartInspectionResponse{Inspection: in, Resumed: resumed}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-inspection",
		Method:      http.MethodGet,
		Path:        "/inspections/{inspection_id}",
		Summary:     "Get an inspection with its checklist",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *inspectionPath) (*output[domain.Inspection], error) {
		in, err := e.GetInspection(ctx, input.InspectionID)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(in), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "cycle-item",
		Method:      http.MethodPost,
		Path:        "/inspections/{inspection_id}/items/{item_id}/cycle",
		Summary:     "Advance an item OK -> ATTENTION -> REPAIR -> OK",
		Description: "A step back to OK that would discard notes or a monitor flag is refused with 409 confirmation_required; call confirm-reset to apply it.",
		Errors:      checklistErrors,
	}, func(ctx context.Context, input *itemPath) (*output[domain.Inspection], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		res, err := e.CycleItem(ctx, input.InspectionID, input.ItemID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		if err := res.Err(); err != nil {
			return nil, handleError(err)
		}
		return respond(res.Inspection), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "confirm-reset",
		Method:      http.MethodPost,
		Path:        "/inspections/{inspection_id}/items/{item_id}/confirm-reset",
		Summary:     "Reset an item to OK, clearing notes and monitor flag",
		Errors:      checklistErrors,
	}, func(ctx context.Context, input *struct {
		InspectionID string              `path:"inspection_id"`
		ItemID       string              `path:"item_id"`
		Body         ConfirmResetRequest `required:"false"`
	}) (*output[domain.Inspection], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		var (
			in  domain.Inspection
			err error
		)
		if input.Body.From == "" {
			in, err = e.ResetItem(ctx, input.InspectionID, input.ItemID, actorID)
		} else {
			from, perr := checklist.ParseStatus(input.Body.From)
			if perr != nil {
				return nil, handleError(perr)
			}
			in, err = e.ConfirmReset(ctx, input.InspectionID, checklist.ConfirmationRequest{
				ItemID: input.ItemID,
				From:   from,
				To:     checklist.StatusOK,
			}, actorID)
		}
		if err != nil {
			return nil, handleError(err)
		}
		return respond(in), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-note",
		Method:      http.MethodPut,
		Path:        "/inspections/{inspection_id}/items/{item_id}/note",
		Summary:     "Replace an item's note",
		Description: "monitor_prompt is true when the item is OK, the note is not empty and the item is not monitored yet.",
		Errors:      checklistErrors,
	}, func(ctx context.Context, input *struct {
		InspectionID string `path:"inspection_id"`
		ItemID       string `path:"item_id"`
		Body         NoteRequest
	}) (*output[engine.NoteResult], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		res, err := e.SetNote(ctx, input.InspectionID, input.ItemID, input.Body.Notes, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(res), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-monitor",
		Method:      http.MethodPut,
		Path:        "/inspections/{inspection_id}/items/{item_id}/monitor",
		Summary:     "Answer the monitor prompt",
		Errors:      checklistErrors,
	}, func(ctx context.Context, input *struct {
		InspectionID string `path:"inspection_id"`
		ItemID       string `path:"item_id"`
		Body         MonitorRequest
	}) (*output[domain.Inspection], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		in, err := e.SetMonitor(ctx, input.InspectionID, input.ItemID, input.Body.Monitor, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(in), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "section-all-ok",
		Method:      http.MethodPost,
		Path:        "/inspections/{inspection_id}/sections/{section}/all-ok",
		Summary:     "Mark every item of a section OK",
		Errors:      checklistErrors,
	}, func(ctx context.Context, input *struct {
		InspectionID string `path:"inspection_id"`
		Section      string `path:"section"`
	}) (*output[domain.Inspection], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		in, err := e.SetAllOK(ctx, input.InspectionID, input.Section, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(in), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "apply-voice",
		Method:      http.MethodPost,
		Path:        "/inspections/{inspection_id}/voice",
		Summary:     "Apply a dictated utterance to the checklist",
		Description: "matched=false means nothing in the utterance named a checklist item; the checklist is unchanged.",
		Errors:      checklistErrors,
	}, func(ctx context.Context, input *struct {
		InspectionID string `path:"inspection_id"`
		Body         VoiceRequest
	}) (*output[engine.VoiceResult], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		res, err := e.ApplyUtterance(ctx, input.InspectionID, input.Body.Utterance, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		if res.Updates == nil {
			res.Updates = []voice.Update{}
		}
		return respond(res), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "manifest",
		Method:      http.MethodGet,
		Path:        "/inspections/{inspection_id}/manifest",
		Summary:     "Outstanding items in checklist order",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *inspectionPath) (*output[ManifestResponse], error) {
		in, err := e.GetInspection(ctx, input.InspectionID)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(ManifestResponse{
			InspectionID: in.ID,
			Worst:        string(checklist.Worst(in.Document)),
			Items:        checklist.DeriveManifest(in.Document),
		}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "complete-inspection",
		Method:      http.MethodPost,
		Path:        "/inspections/{inspection_id}/complete",
		Summary:     "Complete an inspection and update the equipment status",
		Errors:      checklistErrors,
	}, func(ctx context.Context, input *inspectionPath) (*output[domain.Inspection], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		in, err := e.CompleteInspection(ctx, input.InspectionID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(in), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "inspection-report",
		Method:      http.MethodGet,
		Path:        "/inspections/{inspection_id}/report",
		Summary:     "Download the inspection report as XLSX",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *inspectionPath) (*reportOutput, error) {
		in, err := e.GetInspection(ctx, input.InspectionID)
		if err != nil {
			return nil, handleError(err)
		}
		eq, err := e.GetEquipment(ctx, in.EquipmentID)
		if err != nil {
			return nil, handleError(err)
		}
		var buf bytes.Buffer
		if err := report.Write(in, eq, &buf); err != nil {
			return nil, handleError(err)
		}
		return &reportOutput{
			ContentType:        xlsxContentType,
			ContentDisposition: fmt.Sprintf(`attachment; filename="%s-%s.xlsx"`, eq.ID, in.ID),
			Body:               buf.Bytes(),
		}, nil
	})
}
