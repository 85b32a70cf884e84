// Package grpcapi serves sheet lookups to driver apps and barcode scanners.
package grpcapi

import (
	"context"
	"errors"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"

	"github.com/Leganyst/dispatch-core/internal/logger"
	"github.com/Leganyst/dispatch-core/internal/model"
	"github.com/Leganyst/dispatch-core/internal/repository"
	"github.com/Leganyst/dispatch-core/internal/service"
	"github.com/Leganyst/dispatch-core/internal/utils"
)

type Deps struct {
	Auth   Authenticator
	Sheets *service.DelegateSheetService
	Orders *service.OrderService
	Log    *logger.Logger
}

// Server implements SheetLookupServer on top of the dispatch services.
type Server struct {
	sheets *service.DelegateSheetService
	orders *service.OrderService
}

func NewServer(sheets *service.DelegateSheetService, orders *service.OrderService) *Server {
	return &Server{sheets: sheets, orders: orders}
}

// New builds a gRPC server with SheetLookup, health and reflection
// registered. The health server is returned so shutdown can flip it.
func New(d Deps) (*grpc.Server, *health.Server) {
	log := d.Log.With("component", "grpc")
	s := grpc.NewServer(grpc.ChainUnaryInterceptor(
		LoggingInterceptor(log),
		AuthInterceptor(d.Auth),
	))

	RegisterSheetLookupServer(s, NewServer(d.Sheets, d.Orders))

	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(sheetLookupName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(s, hs)

	reflection.Register(s)
	return s, hs
}

func (s *Server) GetSheet(ctx context.Context, req *GetSheetRequest) (*Sheet, error) {
	if req.Barcode == "" {
		return nil, status.Error(codes.InvalidArgument, "barcode is required")
	}
	sheet, err := s.sheets.GetByBarcode(ctx, req.Barcode)
	if err != nil {
		return nil, toStatus(err)
	}

	out := &Sheet{
		ID:           sheet.ID,
		SheetBarcode: sheet.SheetBarcode,
		DriverID:     sheet.DriverID,
		OrderCount:   sheet.OrderCount,
		TotalAmount:  sheet.TotalAmount.StringFixed(2),
		CreatedAt:    sheet.CreatedAt,
		Orders:       make([]Order, 0, len(sheet.Orders)),
	}
	if sheet.Driver != nil {
		out.DriverName = sheet.Driver.Name
	}
	for _, link := range sheet.Orders {
		if link.Order != nil {
			out.Orders = append(out.Orders, orderFromModel(link.Order))
		}
	}
	return out, nil
}

func (s *Server) ListDriverOrders(ctx context.Context, req *ListDriverOrdersRequest) (*ListDriverOrdersResponse, error) {
	if req.DriverID == 0 {
		return nil, status.Error(codes.InvalidArgument, "driver_id is required")
	}
	f := repository.OrderFilter{DriverID: &req.DriverID}
	if req.Status != "" {
		st := model.OrderStatus(req.Status)
		if !st.Valid() {
			return nil, status.Errorf(codes.InvalidArgument, "unknown status %q", req.Status)
		}
		f.Statuses = []model.OrderStatus{st}
	}

	page := repository.Page{Number: req.Page, Size: req.PageSize}.Normalize()
	items, total, err := s.orders.List(ctx, f, page)
	if err != nil {
		return nil, toStatus(err)
	}
	orders := make([]Order, len(items))
	for i := range items {
		orders[i] = orderFromModel(&items[i])
	}
	resp := utils.NewPage(orders, total, page.Number, page.Size)
	return &resp, nil
}

func orderFromModel(o *model.Order) Order {
	return Order{
		ID:               o.ID,
		Barcode:          o.Barcode,
		RecipientName:    o.RecipientName,
		RecipientPhone:   o.RecipientPhone,
		RecipientAddress: o.RecipientAddress,
		City:             o.City,
		CODAmount:        o.CODAmount.StringFixed(2),
		Status:           string(o.Status),
	}
}

// toStatus maps service sentinels onto gRPC codes.
func toStatus(err error) error {
	switch {
	case errors.Is(err, service.ErrValidation), errors.Is(err, repository.ErrInvalidColumn):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, service.ErrInvalidCredentials):
		return status.Error(codes.Unauthenticated, err.Error())
	case errors.Is(err, service.ErrForbidden):
		return status.Error(codes.PermissionDenied, err.Error())
	case errors.Is(err, service.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, service.ErrConflict):
		return status.Error(codes.AlreadyExists, err.Error())
	case errors.Is(err, service.ErrOrderOnSheet),
		errors.Is(err, service.ErrDriverMismatch),
		errors.Is(err, service.ErrInvalidTransition),
		errors.Is(err, service.ErrInUse):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	}
	return status.Error(codes.Internal, "internal error")
}
