package orders

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"cvforge/internal/external"
	"cvforge/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockOrderStore struct {
	mock.Mock
}

func (m *mockOrderStore) Create(ctx context.Context, order *types.Order) error {
	args := m.Called(ctx, order)
	return args.Error(0)
}

func (m *mockOrderStore) GetByID(ctx context.Context, id string) (*types.Order, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.Order), args.Error(1)
}

func (m *mockOrderStore) GetByReference(ctx context.Context, reference string) (*types.Order, error) {
	args := m.Called(ctx, reference)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.Order), args.Error(1)
}

func (m *mockOrderStore) ListByUser(ctx context.Context, userID string, limit int) ([]types.Order, error) {
	args := m.Called(ctx, userID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]types.Order), args.Error(1)
}

func (m *mockOrderStore) SetProviderDetails(ctx context.Context, orderID, reference, accessCode string) error {
	args := m.Called(ctx, orderID, reference, accessCode)
	return args.Error(0)
}

func (m *mockOrderStore) Complete(ctx context.Context, orderID string, pkg types.PackageDefinition) (bool, error) {
	args := m.Called(ctx, orderID, pkg)
	return args.Bool(0), args.Error(1)
}

func (m *mockOrderStore) MarkFailed(ctx context.Context, orderID string) (bool, error) {
	args := m.Called(ctx, orderID)
	return args.Bool(0), args.Error(1)
}

func (m *mockOrderStore) DecrementEdits(ctx context.Context, orderID string) (int, error) {
	args := m.Called(ctx, orderID)
	return args.Int(0), args.Error(1)
}

type mockCatalog struct {
	mock.Mock
}

func (m *mockCatalog) GetPackage(pkg types.PackageType) (*types.PackageDefinition, error) {
	args := m.Called(pkg)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.PackageDefinition), args.Error(1)
}

type mockUsers struct {
	mock.Mock
}

func (m *mockUsers) GetByID(ctx context.Context, id string) (*types.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.User), args.Error(1)
}

type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) InitializeCharge(ctx context.Context, req external.ChargeRequest) (*types.ChargeInit, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.ChargeInit), args.Error(1)
}

func (m *mockGateway) VerifyCharge(ctx context.Context, reference string) (*types.ChargeVerification, error) {
	args := m.Called(ctx, reference)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.ChargeVerification), args.Error(1)
}

type mockMailer struct {
	mock.Mock
}

func (m *mockMailer) SendOrderReceipt(ctx context.Context, email string, order *types.Order) error {
	args := m.Called(ctx, email, order)
	return args.Error(0)
}

type mockAudit struct {
	mock.Mock
}

func (m *mockAudit) Record(ctx context.Context, event *types.AuditEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var standardPkg = types.PackageDefinition{
	ID:            types.PackageStandard,
	Name:          "Standard package",
	PriceCents:    2499,
	Currency:      "usd",
	EditsAllowed:  10,
	CoverLetter:   true,
	TemplateCount: 3,
}

func testBuyer() *types.User {
	return &types.User{
		ID:    "user-1",
		Email: "buyer@example.com",
		Plan:  types.PlanBasic,
	}
}

func newTestService(store *mockOrderStore, catalog *mockCatalog, users *mockUsers, gateway *mockGateway, mailer *mockMailer, audit *mockAudit) *Service {
	var mailerIface receiptSender
	if mailer != nil {
		mailerIface = mailer
	}
	var auditIface auditRecorder
	if audit != nil {
		auditIface = audit
	}
	return NewService(store, catalog, users, gateway, mailerIface, auditIface, CheckoutConfig{
		SuccessURL: "https://app.example.com/orders/{ORDER_ID}/success",
		CancelURL:  "https://app.example.com/orders/cancel",
	}, testLogger())
}

func TestCheckout_CreatesPendingOrderAndInitializesCharge(t *testing.T) {
	store := new(mockOrderStore)
	catalog := new(mockCatalog)
	users := new(mockUsers)
	gateway := new(mockGateway)

	catalog.On("GetPackage", types.PackageStandard).Return(&standardPkg, nil)
	users.On("GetByID", mock.Anything, "user-1").Return(testBuyer(), nil)

	var created *types.Order
	store.On("Create", mock.Anything, mock.AnythingOfType("*types.Order")).
		Run(func(args mock.Arguments) {
			created = args.Get(1).(*types.Order)
		}).Return(nil)

	gateway.On("InitializeCharge", mock.Anything, mock.MatchedBy(func(req external.ChargeRequest) bool {
		return req.Email == "buyer@example.com" &&
			req.AmountCents == 2499 &&
			req.Currency == "usd"
	})).Return(&types.ChargeInit{
		AuthorizationURL: "https://checkout.example.com/pay/cs_1",
		AccessCode:       "cs_1",
		Reference:        "cs_1",
	}, nil)

	store.On("SetProviderDetails", mock.Anything, mock.AnythingOfType("string"), "cs_1", "cs_1").Return(nil)

	svc := newTestService(store, catalog, users, gateway, nil, nil)

	result, err := svc.Checkout(context.Background(), "user-1", types.PackageStandard, "cv-1")
	require.NoError(t, err)

	assert.Equal(t, "https://checkout.example.com/pay/cs_1", result.AuthorizationURL)
	require.NotNil(t, created)
	assert.Equal(t, types.OrderPending, created.Status)
	assert.Equal(t, "user-1", created.UserID)
	assert.Equal(t, "cv-1", created.CVID)
	assert.Equal(t, int64(2499), created.AmountCents)
	// Entitlements stay zeroed until completion.
	assert.Zero(t, created.EditsRemaining)
	assert.False(t, created.HasCoverLetter)
	assert.Equal(t, "cs_1", result.Order.ProviderReference)

	store.AssertExpectations(t)
	gateway.AssertExpectations(t)
}

func TestCheckout_ExpandsOrderIDInSuccessURL(t *testing.T) {
	store := new(mockOrderStore)
	catalog := new(mockCatalog)
	users := new(mockUsers)
	gateway := new(mockGateway)

	catalog.On("GetPackage", types.PackageBasic).Return(&types.PackageDefinition{
		ID: types.PackageBasic, Name: "Basic package", PriceCents: 999, Currency: "usd", EditsAllowed: 3, TemplateCount: 1,
	}, nil)
	users.On("GetByID", mock.Anything, "user-1").Return(testBuyer(), nil)

	var orderID string
	store.On("Create", mock.Anything, mock.AnythingOfType("*types.Order")).
		Run(func(args mock.Arguments) {
			orderID = args.Get(1).(*types.Order).ID
		}).Return(nil)

	var capturedReq external.ChargeRequest
	gateway.On("InitializeCharge", mock.Anything, mock.AnythingOfType("external.ChargeRequest")).
		Run(func(args mock.Arguments) {
			capturedReq = args.Get(1).(external.ChargeRequest)
		}).
		Return(&types.ChargeInit{AuthorizationURL: "u", AccessCode: "c", Reference: "r"}, nil)
	store.On("SetProviderDetails", mock.Anything, mock.AnythingOfType("string"), "r", "c").Return(nil)

	svc := newTestService(store, catalog, users, gateway, nil, nil)

	_, err := svc.Checkout(context.Background(), "user-1", types.PackageBasic, "")
	require.NoError(t, err)

	assert.Equal(t, "https://app.example.com/orders/"+orderID+"/success", capturedReq.SuccessURL)
	assert.Equal(t, "https://app.example.com/orders/cancel?order_id="+orderID, capturedReq.CancelURL)
}

func TestCheckout_UnknownPackageRejected(t *testing.T) {
	store := new(mockOrderStore)
	catalog := new(mockCatalog)
	users := new(mockUsers)
	gateway := new(mockGateway)

	catalog.On("GetPackage", types.PackageType("mega")).
		Return(nil, types.NewAppError(types.ErrCodeValidationInvalidField, "unknown package", nil))

	svc := newTestService(store, catalog, users, gateway, nil, nil)

	_, err := svc.Checkout(context.Background(), "user-1", types.PackageType("mega"), "")
	require.Error(t, err)

	store.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	gateway.AssertNotCalled(t, "InitializeCharge", mock.Anything, mock.Anything)
}

func TestCheckout_ChargeInitFailureMarksOrderFailed(t *testing.T) {
	store := new(mockOrderStore)
	catalog := new(mockCatalog)
	users := new(mockUsers)
	gateway := new(mockGateway)

	catalog.On("GetPackage", types.PackageStandard).Return(&standardPkg, nil)
	users.On("GetByID", mock.Anything, "user-1").Return(testBuyer(), nil)
	store.On("Create", mock.Anything, mock.AnythingOfType("*types.Order")).Return(nil)

	upstreamErr := types.NewAppError(types.ErrCodeUpstreamPayment, "gateway down", nil)
	gateway.On("InitializeCharge", mock.Anything, mock.AnythingOfType("external.ChargeRequest")).
		Return(nil, upstreamErr)
	store.On("MarkFailed", mock.Anything, mock.AnythingOfType("string")).Return(true, nil)

	svc := newTestService(store, catalog, users, gateway, nil, nil)

	_, err := svc.Checkout(context.Background(), "user-1", types.PackageStandard, "")
	require.Error(t, err)

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeUpstreamPayment, appErr.Code)

	store.AssertCalled(t, "MarkFailed", mock.Anything, mock.AnythingOfType("string"))
	store.AssertNotCalled(t, "SetProviderDetails", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestVerifyPayment_SuccessCompletesOrder(t *testing.T) {
	store := new(mockOrderStore)
	catalog := new(mockCatalog)
	users := new(mockUsers)
	gateway := new(mockGateway)

	pending := &types.Order{
		ID: "ord-1", UserID: "user-1", Package: types.PackageStandard,
		Status: types.OrderPending, ProviderReference: "cs_1",
	}
	now := time.Now()
	completed := &types.Order{
		ID: "ord-1", UserID: "user-1", Package: types.PackageStandard,
		Status: types.OrderCompleted, EditsRemaining: 10, HasCoverLetter: true,
		TemplateCount: 3, Progress: 100, CompletedAt: &now,
	}

	store.On("GetByReference", mock.Anything, "cs_1").Return(pending, nil)
	gateway.On("VerifyCharge", mock.Anything, "cs_1").
		Return(&types.ChargeVerification{Succeeded: true, Reference: "cs_1"}, nil)
	catalog.On("GetPackage", types.PackageStandard).Return(&standardPkg, nil)
	store.On("Complete", mock.Anything, "ord-1", standardPkg).Return(true, nil)
	store.On("GetByID", mock.Anything, "ord-1").Return(completed, nil)
	users.On("GetByID", mock.Anything, "user-1").Return(testBuyer(), nil)

	mailer := new(mockMailer)
	mailer.On("SendOrderReceipt", mock.Anything, "buyer@example.com", completed).Return(nil)

	svc := newTestService(store, catalog, users, gateway, mailer, nil)

	order, err := svc.VerifyPayment(context.Background(), "cs_1")
	require.NoError(t, err)

	assert.Equal(t, types.OrderCompleted, order.Status)
	assert.Equal(t, 10, order.EditsRemaining)
	assert.True(t, order.HasCoverLetter)
	mailer.AssertExpectations(t)
	store.AssertExpectations(t)
}

func TestVerifyPayment_AlreadyCompletedIsNoOp(t *testing.T) {
	store := new(mockOrderStore)
	catalog := new(mockCatalog)
	users := new(mockUsers)
	gateway := new(mockGateway)

	completed := &types.Order{
		ID: "ord-1", Status: types.OrderCompleted, EditsRemaining: 7,
	}
	store.On("GetByReference", mock.Anything, "cs_1").Return(completed, nil)

	svc := newTestService(store, catalog, users, gateway, nil, nil)

	order, err := svc.VerifyPayment(context.Background(), "cs_1")
	require.NoError(t, err)

	assert.Equal(t, 7, order.EditsRemaining)
	gateway.AssertNotCalled(t, "VerifyCharge", mock.Anything, mock.Anything)
	store.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything, mock.Anything)
}

func TestVerifyPayment_FailedOrderIsConflict(t *testing.T) {
	store := new(mockOrderStore)
	catalog := new(mockCatalog)
	users := new(mockUsers)
	gateway := new(mockGateway)

	store.On("GetByReference", mock.Anything, "cs_1").
		Return(&types.Order{ID: "ord-1", Status: types.OrderFailed}, nil)

	svc := newTestService(store, catalog, users, gateway, nil, nil)

	_, err := svc.VerifyPayment(context.Background(), "cs_1")
	require.Error(t, err)

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeConflictOrderState, appErr.Code)
	gateway.AssertNotCalled(t, "VerifyCharge", mock.Anything, mock.Anything)
}

func TestVerifyPayment_UnpaidDoesNotFailOrder(t *testing.T) {
	store := new(mockOrderStore)
	catalog := new(mockCatalog)
	users := new(mockUsers)
	gateway := new(mockGateway)

	store.On("GetByReference", mock.Anything, "cs_1").
		Return(&types.Order{ID: "ord-1", Status: types.OrderPending}, nil)
	gateway.On("VerifyCharge", mock.Anything, "cs_1").
		Return(&types.ChargeVerification{Succeeded: false, Reference: "cs_1"}, nil)

	svc := newTestService(store, catalog, users, gateway, nil, nil)

	_, err := svc.VerifyPayment(context.Background(), "cs_1")
	require.Error(t, err)

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodePaymentVerificationFailed, appErr.Code)

	// The customer may still pay; only the webhook settles failure.
	store.AssertNotCalled(t, "MarkFailed", mock.Anything, mock.Anything)
	store.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything, mock.Anything)
}

func TestHandleWebhookEvent_CompletedSettlesOrder(t *testing.T) {
	store := new(mockOrderStore)
	catalog := new(mockCatalog)
	users := new(mockUsers)
	gateway := new(mockGateway)

	pending := &types.Order{ID: "ord-1", UserID: "user-1", Package: types.PackageStandard, Status: types.OrderPending}
	completed := &types.Order{ID: "ord-1", UserID: "user-1", Status: types.OrderCompleted, EditsRemaining: 10}

	store.On("GetByReference", mock.Anything, "cs_1").Return(pending, nil)
	catalog.On("GetPackage", types.PackageStandard).Return(&standardPkg, nil)
	store.On("Complete", mock.Anything, "ord-1", standardPkg).Return(true, nil)
	store.On("GetByID", mock.Anything, "ord-1").Return(completed, nil)
	users.On("GetByID", mock.Anything, "user-1").Return(testBuyer(), nil)

	svc := newTestService(store, catalog, users, gateway, nil, nil)

	err := svc.HandleWebhookEvent(context.Background(), &external.WebhookEvent{
		Type: external.EventCheckoutCompleted, Reference: "cs_1", Succeeded: true,
	})
	require.NoError(t, err)

	store.AssertExpectations(t)
	// Webhook settlement never re-verifies with the gateway.
	gateway.AssertNotCalled(t, "VerifyCharge", mock.Anything, mock.Anything)
}

func TestHandleWebhookEvent_RedeliveryIsNoOp(t *testing.T) {
	store := new(mockOrderStore)
	catalog := new(mockCatalog)
	users := new(mockUsers)
	gateway := new(mockGateway)

	store.On("GetByReference", mock.Anything, "cs_1").
		Return(&types.Order{ID: "ord-1", Status: types.OrderCompleted}, nil)

	svc := newTestService(store, catalog, users, gateway, nil, nil)

	err := svc.HandleWebhookEvent(context.Background(), &external.WebhookEvent{
		Type: external.EventCheckoutCompleted, Reference: "cs_1", Succeeded: true,
	})
	require.NoError(t, err)

	store.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything, mock.Anything)
}

func TestHandleWebhookEvent_ExpiredFailsOrder(t *testing.T) {
	store := new(mockOrderStore)
	catalog := new(mockCatalog)
	users := new(mockUsers)
	gateway := new(mockGateway)

	store.On("GetByReference", mock.Anything, "cs_1").
		Return(&types.Order{ID: "ord-1", Status: types.OrderPending}, nil)
	store.On("MarkFailed", mock.Anything, "ord-1").Return(true, nil)

	svc := newTestService(store, catalog, users, gateway, nil, nil)

	err := svc.HandleWebhookEvent(context.Background(), &external.WebhookEvent{
		Type: external.EventCheckoutExpired, Reference: "cs_1",
	})
	require.NoError(t, err)

	store.AssertExpectations(t)
}

func TestHandleWebhookEvent_UnknownTypeIgnored(t *testing.T) {
	store := new(mockOrderStore)
	catalog := new(mockCatalog)
	users := new(mockUsers)
	gateway := new(mockGateway)

	svc := newTestService(store, catalog, users, gateway, nil, nil)

	err := svc.HandleWebhookEvent(context.Background(), &external.WebhookEvent{
		Type: "invoice.paid", Reference: "in_1",
	})
	require.NoError(t, err)

	store.AssertNotCalled(t, "GetByReference", mock.Anything, mock.Anything)
}

func TestConsumeEdit_ReturnsRemaining(t *testing.T) {
	store := new(mockOrderStore)
	catalog := new(mockCatalog)
	users := new(mockUsers)
	gateway := new(mockGateway)

	store.On("GetByID", mock.Anything, "ord-1").
		Return(&types.Order{ID: "ord-1", UserID: "user-1", Status: types.OrderCompleted, EditsRemaining: 3}, nil)
	store.On("DecrementEdits", mock.Anything, "ord-1").Return(2, nil)

	svc := newTestService(store, catalog, users, gateway, nil, nil)

	remaining, err := svc.ConsumeEdit(context.Background(), "user-1", "ord-1")
	require.NoError(t, err)
	assert.Equal(t, 2, remaining)
}

func TestConsumeEdit_ForeignOrderLooksMissing(t *testing.T) {
	store := new(mockOrderStore)
	catalog := new(mockCatalog)
	users := new(mockUsers)
	gateway := new(mockGateway)

	store.On("GetByID", mock.Anything, "ord-1").
		Return(&types.Order{ID: "ord-1", UserID: "someone-else", Status: types.OrderCompleted, EditsRemaining: 3}, nil)

	svc := newTestService(store, catalog, users, gateway, nil, nil)

	_, err := svc.ConsumeEdit(context.Background(), "user-1", "ord-1")
	require.Error(t, err)

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeNotFoundOrder, appErr.Code)
	store.AssertNotCalled(t, "DecrementEdits", mock.Anything, mock.Anything)
}

func TestConsumeEdit_ExhaustedPropagates(t *testing.T) {
	store := new(mockOrderStore)
	catalog := new(mockCatalog)
	users := new(mockUsers)
	gateway := new(mockGateway)

	store.On("GetByID", mock.Anything, "ord-1").
		Return(&types.Order{ID: "ord-1", UserID: "user-1", Status: types.OrderCompleted}, nil)
	store.On("DecrementEdits", mock.Anything, "ord-1").
		Return(0, types.NewAppError(types.ErrCodeEditsExhausted, "no edits remaining", nil))

	svc := newTestService(store, catalog, users, gateway, nil, nil)

	_, err := svc.ConsumeEdit(context.Background(), "user-1", "ord-1")
	require.Error(t, err)

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeEditsExhausted, appErr.Code)
}

func TestVerifyPayment_ReceiptFailureDoesNotBlockCompletion(t *testing.T) {
	store := new(mockOrderStore)
	catalog := new(mockCatalog)
	users := new(mockUsers)
	gateway := new(mockGateway)

	pending := &types.Order{ID: "ord-1", UserID: "user-1", Package: types.PackageStandard, Status: types.OrderPending}
	completed := &types.Order{ID: "ord-1", UserID: "user-1", Status: types.OrderCompleted, EditsRemaining: 10}

	store.On("GetByReference", mock.Anything, "cs_1").Return(pending, nil)
	gateway.On("VerifyCharge", mock.Anything, "cs_1").
		Return(&types.ChargeVerification{Succeeded: true}, nil)
	catalog.On("GetPackage", types.PackageStandard).Return(&standardPkg, nil)
	store.On("Complete", mock.Anything, "ord-1", standardPkg).Return(true, nil)
	store.On("GetByID", mock.Anything, "ord-1").Return(completed, nil)
	users.On("GetByID", mock.Anything, "user-1").Return(testBuyer(), nil)

	mailer := new(mockMailer)
	mailer.On("SendOrderReceipt", mock.Anything, "buyer@example.com", completed).
		Return(errors.New("smtp down"))

	svc := newTestService(store, catalog, users, gateway, mailer, nil)

	order, err := svc.VerifyPayment(context.Background(), "cs_1")
	require.NoError(t, err)
	assert.Equal(t, types.OrderCompleted, order.Status)
}
