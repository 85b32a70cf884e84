package grpcapi

import (
	"context"
	"time"

	"google.golang.org/grpc"

	"github.com/Leganyst/dispatch-core/internal/utils"
)

const sheetLookupName = "dispatch.v1.SheetLookup"

type GetSheetRequest struct {
	Barcode string `json:"barcode"`
}

type Order struct {
	ID               uint    `json:"id"`
	Barcode          string  `json:"barcode"`
	RecipientName    string  `json:"recipient_name"`
	RecipientPhone   string  `json:"recipient_phone"`
	RecipientAddress string  `json:"recipient_address"`
	City             *string `json:"city,omitempty"`
	CODAmount        string  `json:"cod_amount"`
	Status           string  `json:"status"`
}

type Sheet struct {
	ID           uint      `json:"id"`
	SheetBarcode string    `json:"sheet_barcode"`
	DriverID     uint      `json:"driver_id"`
	DriverName   string    `json:"driver_name"`
	OrderCount   int       `json:"order_count"`
	TotalAmount  string    `json:"total_amount"`
	CreatedAt    time.Time `json:"created_at"`
	Orders       []Order   `json:"orders"`
}

type ListDriverOrdersRequest struct {
	DriverID uint   `json:"driver_id"`
	Status   string `json:"status,omitempty"`
	Page     int    `json:"page,omitempty"`
	PageSize int    `json:"page_size,omitempty"`
}

type ListDriverOrdersResponse = utils.Page[Order]

// SheetLookupServer is the read-only API driver apps and scanners use.
type SheetLookupServer interface {
	GetSheet(context.Context, *GetSheetRequest) (*Sheet, error)
	ListDriverOrders(context.Context, *ListDriverOrdersRequest) (*ListDriverOrdersResponse, error)
}

func RegisterSheetLookupServer(s grpc.ServiceRegistrar, srv SheetLookupServer) {
	s.RegisterService(&sheetLookupDesc, srv)
}

// sheetLookupDesc is written by hand and has no registered file descriptor:
// reflection lists the service but cannot describe its methods.
var sheetLookupDesc = grpc.ServiceDesc{
	ServiceName: sheetLookupName,
	HandlerType: (*SheetLookupServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetSheet", Handler: getSheetHandler},
		{MethodName: "ListDriverOrders", Handler: listDriverOrdersHandler},
	},
	Streams: []grpc.StreamDesc{},
}

func getSheetHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(GetSheetRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SheetLookupServer).GetSheet(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + sheetLookupName + "/GetSheet"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(SheetLookupServer).GetSheet(ctx, req.(*GetSheetRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func listDriverOrdersHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(ListDriverOrdersRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SheetLookupServer).ListDriverOrders(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + sheetLookupName + "/ListDriverOrders"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(SheetLookupServer).ListDriverOrders(ctx, req.(*ListDriverOrdersRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// SheetLookupClient calls SheetLookup over the JSON codec.
type SheetLookupClient struct {
	cc grpc.ClientConnInterface
}

func NewSheetLookupClient(cc grpc.ClientConnInterface) *SheetLookupClient {
	return &SheetLookupClient{cc: cc}
}

func (c *SheetLookupClient) GetSheet(ctx context.Context, in *GetSheetRequest, opts ...grpc.CallOption) (*Sheet, error) {
	out := new(Sheet)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := c.cc.Invoke(ctx, "/"+sheetLookupName+"/GetSheet", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *SheetLookupClient) ListDriverOrders(ctx context.Context, in *ListDriverOrdersRequest, opts ...grpc.CallOption) (*ListDriverOrdersResponse, error) {
	out := new(ListDriverOrdersResponse)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := c.cc.Invoke(ctx, "/"+sheetLookupName+"/ListDriverOrders", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
