package handlers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/gartstein/solarcrm/internal/crm/controller"
	"github.com/gartstein/solarcrm/internal/crm/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const LeadServiceName = "crm.v1.LeadService"

// LeadServiceController is the business logic the gRPC LeadService invokes.
type LeadServiceController interface {
	GetLead(ctx context.Context, id uuid.UUID) (*models.Lead, error)
	ConvertLead(ctx context.Context, id uuid.UUID) (*controller.Conversion, error)
}

// LeadServiceServer is the server API of crm.v1.LeadService. Requests
// carry the lead id; responses are the JSON shape of the HTTP API.
type LeadServiceServer interface {
	GetLead(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error)
	ConvertLead(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error)
}

// LeadServiceDesc describes crm.v1.LeadService for grpc.Server.RegisterService.
var LeadServiceDesc = grpc.ServiceDesc{
	ServiceName: LeadServiceName,
	HandlerType: (*LeadServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetLead", Handler: unaryHandler("GetLead", LeadServiceServer.GetLead)},
		{MethodName: "ConvertLead", Handler: unaryHandler("ConvertLead", LeadServiceServer.ConvertLead)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "crm/v1/lead.proto",
}

type leadMethod func(LeadServiceServer, context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)

func unaryHandler(name string, call leadMethod) func(interface{}, context.Context, func(interface{}) error, grpc.UnaryServerInterceptor) (interface{}, error) {
	fullMethod := "/" + LeadServiceName + "/" + name
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(wrapperspb.StringValue)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(LeadServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(srv.(LeadServiceServer), ctx, req.(*wrapperspb.StringValue))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// LeadServiceClient calls crm.v1.LeadService.
type LeadServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewLeadServiceClient(cc grpc.ClientConnInterface) *LeadServiceClient {
	return &LeadServiceClient{cc: cc}
}

func (c *LeadServiceClient) GetLead(ctx context.Context, id string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "GetLead", id, opts...)
}

func (c *LeadServiceClient) ConvertLead(ctx context.Context, id string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "ConvertLead", id, opts...)
}

func (c *LeadServiceClient) invoke(ctx context.Context, method, id string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+LeadServiceName+"/"+method, wrapperspb.String(id), out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// LeadHandler provides gRPC methods for lead operations,
// mapping requests to a LeadServiceController.
type LeadHandler struct {
	service LeadServiceController
	logger  *zap.Logger
}

// NewLeadHandler constructs a new LeadHandler with the given service and logger.
func NewLeadHandler(service LeadServiceController, logger *zap.Logger) *LeadHandler {
	return &LeadHandler{
		service: service,
		logger:  logger.Named("grpc_handler"),
	}
}

// GetLead fetches a lead by ID.
func (h *LeadHandler) GetLead(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	id, err := uuid.Parse(req.GetValue())
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, "invalid lead ID")
	}

	lead, err := h.service.GetLead(ctx, id)
	if err != nil {
		return nil, mapServiceError(h.logger, err)
	}
	return h.toStruct(toLeadDTO(lead))
}

// ConvertLead converts a lead into a customer, returning the existing
// customer when the lead was already converted.
func (h *LeadHandler) ConvertLead(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	id, err := uuid.Parse(req.GetValue())
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, "invalid lead ID")
	}

	conv, err := h.service.ConvertLead(ctx, id)
	if err != nil {
		h.logger.Error("Convert lead failed", zap.String("lead_id", id.String()), zap.Error(err))
		return nil, mapServiceError(h.logger, err)
	}
	return h.toStruct(toConversionDTO(conv))
}

// toStruct converts a DTO into a protobuf Struct through its JSON form.
func (h *LeadHandler) toStruct(v interface{}) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, mapServiceError(h.logger, fmt.Errorf("failed to encode response: %w", err))
	}
	var fields map[string]interface{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, mapServiceError(h.logger, fmt.Errorf("failed to encode response: %w", err))
	}
	out, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, mapServiceError(h.logger, fmt.Errorf("failed to encode response: %w", err))
	}
	return out, nil
}
