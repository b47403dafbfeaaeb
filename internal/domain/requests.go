package domain

import "time"

type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type CastLoginRequest struct {
	Username string `json:"username" validate:"required"`
	PIN      string `json:"pin" validate:"required,numeric,min=4,max=8"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	CastID      string `json:"cast_id,omitempty"`
	ExpiresAt   string `json:"expires_at"`
}

type StaffUser struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

type StaffCreateRequest struct {
	Username string `json:"username" validate:"required,min=4,max=32"`
	Password string `json:"password" validate:"required,min=6"`
}

type SessionStartRequest struct {
	TableID     string      `json:"table_id" validate:"required"`
	SeatingTier SeatingTier `json:"seating_tier" validate:"required,oneof=free designated inhouse"`
	BaseMinutes int         `json:"base_minutes" validate:"required,oneof=40 60 90"`
	Notes       string      `json:"notes" validate:"max=200"`
	CastIDs     []string    `json:"cast_ids" validate:"max=8,dive,required"`
}

type SessionEndRequest struct {
	PaymentMethod PaymentMethod `json:"payment_method" validate:"required,oneof=cash card qr contactless split"`
}

type SessionCancelRequest struct {
	ManagerPIN string `json:"manager_pin" validate:"required"`
	Reason     string `json:"reason" validate:"max=200"`
}

type PaymentMethodRequest struct {
	PaymentMethod PaymentMethod `json:"payment_method" validate:"required,oneof=cash card qr contactless split"`
}

type CustomerPaymentRequest struct {
	PaymentMethod PaymentMethod `json:"payment_method" validate:"required,oneof=cash card qr contactless"`
}

type OrderCreateRequest struct {
	ProductID string `json:"product_id" validate:"required"`
	CastID    string `json:"cast_id"`
	Quantity  int    `json:"quantity" validate:"omitempty,min=1,max=99"`
}

type OrderCancelRequest struct {
	Reason string `json:"reason" validate:"required,max=200"`
}

type AdjustmentCreateRequest struct {
	Type           AdjustmentType `json:"type" validate:"required,oneof=discount cancel price_change custom"`
	OrderID        string         `json:"order_id"`
	OriginalAmount int64          `json:"original_amount" validate:"min=0"`
	Delta          int64          `json:"delta" validate:"required"`
	Reason         string         `json:"reason" validate:"required,max=200"`
}

type AssignmentRequest struct {
	CastID string `json:"cast_id" validate:"required"`
}

type ClockInRequest struct {
	StoreID int64  `json:"store_id" validate:"required,min=1"`
	Notes   string `json:"notes" validate:"max=200"`
}

type ShiftReviewRequest struct {
	Edge     string         `json:"edge" validate:"required,oneof=clock_in clock_out"`
	Decision ApprovalStatus `json:"decision" validate:"required,oneof=approved rejected"`
}

type LatePickupRequest struct {
	Start *time.Time `json:"start"`
}

type CastCreateRequest struct {
	Name         string `json:"name" validate:"required,max=40"`
	Username     string `json:"username" validate:"required,min=3,max=32"`
	PIN          string `json:"pin" validate:"required,numeric,min=4,max=8"`
	HourlyRate   int64  `json:"hourly_rate" validate:"min=0"`
	TransportFee int64  `json:"transport_fee" validate:"min=0"`
	ReferredBy   string `json:"referred_by"`
}

type CastUpdateRequest struct {
	Name         *string `json:"name,omitempty" validate:"omitempty,max=40"`
	PIN          *string `json:"pin,omitempty" validate:"omitempty,numeric,min=4,max=8"`
	HourlyRate   *int64  `json:"hourly_rate,omitempty" validate:"omitempty,min=0"`
	TransportFee *int64  `json:"transport_fee,omitempty" validate:"omitempty,min=0"`
	ReferredBy   *string `json:"referred_by,omitempty"`
	Active       *bool   `json:"active,omitempty"`
}

type SettingUpdateRequest struct {
	Value *int64 `json:"value" validate:"required"`
}
