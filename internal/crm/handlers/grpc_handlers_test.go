package handlers

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/gartstein/solarcrm/internal/crm/auth"
	"github.com/gartstein/solarcrm/internal/crm/controller"
	e "github.com/gartstein/solarcrm/internal/crm/errors"
	"github.com/gartstein/solarcrm/internal/crm/models"
	"github.com/google/uuid"
	grpc_prometheus "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// mockLeadController is a simple mock implementation of LeadServiceController.
type mockLeadController struct {
	getLeadFunc     func(ctx context.Context, id uuid.UUID) (*models.Lead, error)
	convertLeadFunc func(ctx context.Context, id uuid.UUID) (*controller.Conversion, error)
}

func (m *mockLeadController) GetLead(ctx context.Context, id uuid.UUID) (*models.Lead, error) {
	return m.getLeadFunc(ctx, id)
}

func (m *mockLeadController) ConvertLead(ctx context.Context, id uuid.UUID) (*controller.Conversion, error) {
	return m.convertLeadFunc(ctx, id)
}

func sampleConversion(id uuid.UUID) *controller.Conversion {
	customerID := uuid.New()
	return &controller.Conversion{
		Lead: &models.Lead{
			Base:        models.Base{ID: id, IsActive: true},
			LeadNumber:  "LED-000007",
			Status:      models.LeadWon,
			ContactName: "Dana Levi",
			CustomerID:  &customerID,
		},
		Customer: &models.Customer{
			Base:           models.Base{ID: customerID, IsActive: true},
			CustomerNumber: "CUS-000003",
			CustomerType:   models.CustomerPrivate,
			FirstName:      "Dana",
			LastName:       "Levi",
		},
		Contact: &models.Contact{
			Base:      models.Base{ID: uuid.New(), IsActive: true},
			Parent:    models.CustomerRef(customerID),
			FirstName: "Dana",
			LastName:  "Levi",
			IsPrimary: true,
		},
		Created: true,
	}
}

func TestLeadHandler_GetLead(t *testing.T) {
	logger := zaptest.NewLogger(t)

	t.Run("InvalidID", func(t *testing.T) {
		handler := NewLeadHandler(&mockLeadController{}, logger)
		_, err := handler.GetLead(context.Background(), wrapperspb.String("not-a-uuid"))
		assert.Equal(t, codes.InvalidArgument, status.Code(err))
	})

	t.Run("NotFound", func(t *testing.T) {
		handler := NewLeadHandler(&mockLeadController{
			getLeadFunc: func(context.Context, uuid.UUID) (*models.Lead, error) { return nil, e.ErrNotFound },
		}, logger)
		_, err := handler.GetLead(context.Background(), wrapperspb.String(uuid.NewString()))
		assert.Equal(t, codes.NotFound, status.Code(err))
	})

	t.Run("Success", func(t *testing.T) {
		id := uuid.New()
		handler := NewLeadHandler(&mockLeadController{
			getLeadFunc: func(_ context.Context, got uuid.UUID) (*models.Lead, error) {
				assert.Equal(t, id, got)
				return &models.Lead{
					Base:        models.Base{ID: got, IsActive: true},
					LeadNumber:  "LED-000001",
					Status:      models.LeadNew,
					ContactName: "Dana Levi",
					Address:     models.Address{City: "Haifa", Country: models.DefaultCountry},
				}, nil
			},
		}, logger)

		resp, err := handler.GetLead(context.Background(), wrapperspb.String(id.String()))
		require.NoError(t, err)
		fields := resp.AsMap()
		assert.Equal(t, "LED-000001", fields["lead_number"])
		assert.Equal(t, "new", fields["status"])
		assert.Equal(t, "Haifa, Israel", fields["full_address"])
		assert.Equal(t, false, fields["converted"])
		assert.Nil(t, fields["customer_id"])
	})
}

func TestLeadHandler_ConvertLead(t *testing.T) {
	logger := zaptest.NewLogger(t)

	t.Run("ServiceError", func(t *testing.T) {
		handler := NewLeadHandler(&mockLeadController{
			convertLeadFunc: func(context.Context, uuid.UUID) (*controller.Conversion, error) {
				return nil, errors.New("connection reset")
			},
		}, logger)
		_, err := handler.ConvertLead(context.Background(), wrapperspb.String(uuid.NewString()))
		st, _ := status.FromError(err)
		assert.Equal(t, codes.Internal, st.Code())
		assert.NotContains(t, st.Message(), "connection reset")
	})

	t.Run("ValidationError", func(t *testing.T) {
		handler := NewLeadHandler(&mockLeadController{
			convertLeadFunc: func(context.Context, uuid.UUID) (*controller.Conversion, error) {
				var v e.ValidationError
				v.Add("email", "invalid email address")
				return nil, v.Err()
			},
		}, logger)
		_, err := handler.ConvertLead(context.Background(), wrapperspb.String(uuid.NewString()))
		st, _ := status.FromError(err)
		assert.Equal(t, codes.InvalidArgument, st.Code())
		assert.Contains(t, st.Message(), "email: invalid email address")
	})

	t.Run("Success", func(t *testing.T) {
		id := uuid.New()
		handler := NewLeadHandler(&mockLeadController{
			convertLeadFunc: func(_ context.Context, got uuid.UUID) (*controller.Conversion, error) {
				return sampleConversion(got), nil
			},
		}, logger)

		resp, err := handler.ConvertLead(context.Background(), wrapperspb.String(id.String()))
		require.NoError(t, err)
		fields := resp.AsMap()
		assert.Equal(t, true, fields["created"])
		customer := fields["customer"].(map[string]interface{})
		assert.Equal(t, "CUS-000003", customer["customer_number"])
		assert.Equal(t, "Dana Levi", customer["display_name"])
		contact := fields["contact"].(map[string]interface{})
		assert.Equal(t, true, contact["is_primary"])
		lead := fields["lead"].(map[string]interface{})
		assert.Equal(t, "won", lead["status"])
		assert.Equal(t, customer["id"], lead["customer_id"])
	})
}

func TestCodeOf(t *testing.T) {
	tests := []struct {
		err  error
		want codes.Code
	}{
		{e.ErrNotFound, codes.NotFound},
		{e.ErrInvalidInput, codes.InvalidArgument},
		{e.ErrDuplicateNumber, codes.AlreadyExists},
		{e.ErrConflict, codes.Aborted},
		{e.ErrProtected, codes.FailedPrecondition},
		{e.ErrUnavailable, codes.Unavailable},
		{context.DeadlineExceeded, codes.DeadlineExceeded},
		{errors.New("boom"), codes.Internal},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, codeOf(errors.Join(errors.New("wrapped"), tt.err)), tt.err.Error())
	}
}

// startLeadService serves the LeadService over an in-memory listener with
// the interceptors main installs.
func startLeadService(t *testing.T, service LeadServiceController) *grpc.ClientConn {
	logger := zaptest.NewLogger(t)
	lis := bufconn.Listen(1 << 20)

	server := NewServer(0, 0, logger, grpc.ChainUnaryInterceptor(
		grpc_prometheus.UnaryServerInterceptor,
		auth.NewAuthInterceptor("test-secret").Unary(),
	))
	server.RegisterGRPCHandler(NewLeadHandler(service, logger))
	go func() { _ = server.grpcServer.Serve(lis) }()
	t.Cleanup(server.grpcServer.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestLeadService_OverGRPC(t *testing.T) {
	id := uuid.New()
	conn := startLeadService(t, &mockLeadController{
		getLeadFunc: func(_ context.Context, got uuid.UUID) (*models.Lead, error) {
			return &models.Lead{Base: models.Base{ID: got}, LeadNumber: "LED-000001", Status: models.LeadNew}, nil
		},
		convertLeadFunc: func(ctx context.Context, got uuid.UUID) (*controller.Conversion, error) {
			user, ok := auth.UserFromContext(ctx)
			if !ok || user != "sales-1" {
				return nil, errors.New("caller missing from context")
			}
			return sampleConversion(got), nil
		},
	})
	client := NewLeadServiceClient(conn)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	lead, err := client.GetLead(ctx, id.String())
	require.NoError(t, err, "reads need no token")
	assert.Equal(t, "LED-000001", lead.AsMap()["lead_number"])

	_, err = client.ConvertLead(ctx, id.String())
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	token, err := auth.GenerateToken("sales-1", "test-secret")
	require.NoError(t, err)
	authed := metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+token)
	conv, err := client.ConvertLead(authed, id.String())
	require.NoError(t, err)
	assert.Equal(t, true, conv.AsMap()["created"])

	health, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: LeadServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, health.GetStatus())
}
