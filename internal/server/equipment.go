package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"sidekick/internal/domain"
	"sidekick/internal/engine"
)

type equipmentPath struct {
	EquipmentID string `path:"equipment_id"`
}

func registerEquipment(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-equipment",
		Method:      http.MethodGet,
		Path:        "/equipment",
		Summary:     "List equipment",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Search string `query:"search" doc:"case-insensitive match on id or name"`
	}) (*output[EquipmentList], error) {
		items, err := e.ListEquipment(ctx, input.Search)
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []domain.Equipment{}
		}
		return respond(EquipmentList{Items: items}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-equipment",
		Method:        http.MethodPost,
		Path:          "/equipment",
		Summary:       "Register equipment",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		Body CreateEquipmentRequest
	}) (*output[domain.Equipment], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		eq, err := e.AddEquipment(ctx, engine.EquipmentOptions{
			ID:        input.Body.ID,
			Name:      input.Body.Name,
			Type:      input.Body.Type,
			HoistType: input.Body.HoistType,
			Location:  input.Body.Location,
			Model:     input.Body.Model,
			ActorID:   actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return respond(eq), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-equipment",
		Method:      http.MethodGet,
		Path:        "/equipment/{equipment_id}",
		Summary:     "Equipment detail with inspection history",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *equipmentPath) (*output[EquipmentDetail], error) {
		eq, err := e.GetEquipment(ctx, input.EquipmentID)
		if err != nil {
			return nil, handleError(err)
		}
		history, err := e.ListInspections(ctx, eq.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(EquipmentDetail{Equipment: eq, Inspections: inspectionSummaries(history)}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-equipment-inspections",
		Method:      http.MethodGet,
		Path:        "/equipment/{equipment_id}/inspections",
		Summary:     "Inspections of one unit, newest first",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *equipmentPath) (*output[InspectionList], error) {
		if _, err := e.GetEquipment(ctx, input.EquipmentID); err != nil {
			return nil, handleError(err)
		}
		items, err := e.ListInspections(ctx, input.EquipmentID)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(InspectionList{Items: inspectionSummaries(items)}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "scan",
		Method:      http.MethodPost,
		Path:        "/scan",
		Summary:     "Resolve a scanned QR payload to equipment",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Body ScanRequest
	}) (*output[domain.Equipment], error) {
		eq, err := e.ResolveScan(ctx, input.Body.Payload)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(eq), nil
	})
}
