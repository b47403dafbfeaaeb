package domain

import "time"

const (
	RoleAdmin = "admin"
	RoleStaff = "staff"
	RoleCast  = "cast"
)

type ProductCategory string

const (
	CategorySet        ProductCategory = "set"
	CategoryExtension  ProductCategory = "extension"
	CategoryNomination ProductCategory = "nomination"
	CategoryCompanion  ProductCategory = "companion"
	CategoryDrinks     ProductCategory = "drinks"
	CategoryBottles    ProductCategory = "bottles"
)

func (c ProductCategory) Valid() bool {
	switch c {
	case CategorySet, CategoryExtension, CategoryNomination, CategoryCompanion, CategoryDrinks, CategoryBottles:
		return true
	default:
		return false
	}
}

type SeatingTier string

const (
	SeatingFree       SeatingTier = "free"
	SeatingDesignated SeatingTier = "designated"
	SeatingInhouse    SeatingTier = "inhouse"
)

func (t SeatingTier) Valid() bool {
	switch t {
	case SeatingFree, SeatingDesignated, SeatingInhouse:
		return true
	default:
		return false
	}
}

// ExtensionTier marks which designation an extension product belongs to.
// Extensions without a tier extend time only.
type ExtensionTier string

const (
	ExtensionTierNone       ExtensionTier = ""
	ExtensionTierInhouse    ExtensionTier = "inhouse"
	ExtensionTierDesignated ExtensionTier = "designated"
)

type BillStatus string

const (
	BillOpen   BillStatus = "open"
	BillClosed BillStatus = "closed"
)

type PaymentMethod string

const (
	PaymentCash        PaymentMethod = "cash"
	PaymentCard        PaymentMethod = "card"
	PaymentQR          PaymentMethod = "qr"
	PaymentContactless PaymentMethod = "contactless"
	PaymentSplit       PaymentMethod = "split"
	PaymentCancelled   PaymentMethod = "cancelled"
)

// Settleable reports whether the method can close a bill.
func (m PaymentMethod) Settleable() bool {
	switch m {
	case PaymentCash, PaymentCard, PaymentQR, PaymentContactless, PaymentSplit:
		return true
	default:
		return false
	}
}

// CustomerSelectable reports whether a customer may pick the method from the table view.
func (m PaymentMethod) CustomerSelectable() bool {
	switch m {
	case PaymentCash, PaymentCard, PaymentQR, PaymentContactless:
		return true
	default:
		return false
	}
}

type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

type AdjustmentType string

const (
	AdjustmentDiscount    AdjustmentType = "discount"
	AdjustmentCancel      AdjustmentType = "cancel"
	AdjustmentPriceChange AdjustmentType = "price_change"
	AdjustmentCustom      AdjustmentType = "custom"
)

type Store struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Active bool   `json:"active"`
}

type FloorTable struct {
	ID      string `json:"id"`
	StoreID int64  `json:"store_id"`
	Label   string `json:"label"`
	Seats   int    `json:"seats"`
	Active  bool   `json:"active"`
}

type Product struct {
	ID               string          `json:"id"`
	Name             string          `json:"name"`
	Category         ProductCategory `json:"category"`
	Price            int64           `json:"price"`
	TaxApplicable    bool            `json:"tax_applicable"`
	BackFree         int64           `json:"back_free"`
	BackDesignated   int64           `json:"back_designated"`
	Points           int64           `json:"points"`
	DrinkUnits       int             `json:"drink_units"`
	ExtensionMinutes int             `json:"extension_minutes"`
	ExtensionTier    ExtensionTier   `json:"extension_tier,omitempty"`
	SortOrder        int             `json:"sort_order"`
	Active           bool            `json:"active"`
}

// AdvancesDesignation reports whether ordering the product counts toward
// the per-cast designation threshold.
func (p Product) AdvancesDesignation() bool {
	if p.Category != CategoryExtension {
		return false
	}
	return p.ExtensionTier == ExtensionTierInhouse || p.ExtensionTier == ExtensionTierDesignated
}

type ProductCreateRequest struct {
	Name             string          `json:"name" validate:"required,max=80"`
	Category         ProductCategory `json:"category" validate:"required,oneof=set extension nomination companion drinks bottles"`
	Price            int64           `json:"price" validate:"min=0"`
	TaxApplicable    bool            `json:"tax_applicable"`
	BackFree         int64           `json:"back_free" validate:"min=0"`
	BackDesignated   int64           `json:"back_designated" validate:"min=0"`
	Points           int64           `json:"points" validate:"min=0"`
	DrinkUnits       int             `json:"drink_units" validate:"min=0,max=3"`
	ExtensionMinutes int             `json:"extension_minutes" validate:"omitempty,oneof=20 40"`
	ExtensionTier    ExtensionTier   `json:"extension_tier" validate:"omitempty,oneof=inhouse designated"`
	SortOrder        int             `json:"sort_order"`
}

type ProductUpdateRequest struct {
	Name           *string `json:"name,omitempty" validate:"omitempty,max=80"`
	Price          *int64  `json:"price,omitempty" validate:"omitempty,min=0"`
	TaxApplicable  *bool   `json:"tax_applicable,omitempty"`
	BackFree       *int64  `json:"back_free,omitempty" validate:"omitempty,min=0"`
	BackDesignated *int64  `json:"back_designated,omitempty" validate:"omitempty,min=0"`
	Points         *int64  `json:"points,omitempty" validate:"omitempty,min=0"`
	SortOrder      *int    `json:"sort_order,omitempty"`
	Active         *bool   `json:"active,omitempty"`
}

type ProductPriceHistory struct {
	ID        string    `json:"id"`
	ProductID string    `json:"product_id"`
	OldPrice  int64     `json:"old_price"`
	NewPrice  int64     `json:"new_price"`
	ChangedBy string    `json:"changed_by"`
	ChangedAt time.Time `json:"changed_at"`
}

type Bill struct {
	ID            string        `json:"id"`
	StoreID       int64         `json:"store_id"`
	TableID       string        `json:"table_id"`
	Status        BillStatus    `json:"status"`
	SeatingTier   SeatingTier   `json:"seating_tier"`
	StartTime     time.Time     `json:"start_time"`
	BaseMinutes   int           `json:"base_minutes"`
	PaymentMethod PaymentMethod `json:"payment_method,omitempty"`
	ReadToken     string        `json:"read_token"`
	Notes         string        `json:"notes,omitempty"`
	OpenedBy      string        `json:"opened_by"`
	ClosedBy      string        `json:"closed_by,omitempty"`
	CloseTime     *time.Time    `json:"close_time,omitempty"`
}

func (b Bill) IsCancelled() bool {
	return b.PaymentMethod == PaymentCancelled
}

// Order is one line item on a bill. UnitPrice, BackAmount and PointsAmount
// are per unit and captured when the order is placed.
type Order struct {
	ID               string          `json:"id"`
	BillID           string          `json:"bill_id"`
	ProductID        string          `json:"product_id"`
	ProductName      string          `json:"product_name"`
	Category         ProductCategory `json:"category"`
	CastID           string          `json:"cast_id,omitempty"`
	Quantity         int             `json:"quantity"`
	UnitPrice        int64           `json:"unit_price"`
	TaxApplicable    bool            `json:"tax_applicable"`
	BackAmount       int64           `json:"back_amount"`
	PointsAmount     int64           `json:"points_amount"`
	DrinkUnits       int             `json:"drink_units"`
	ExtensionMinutes int             `json:"extension_minutes,omitempty"`
	ExtensionTier    ExtensionTier   `json:"extension_tier,omitempty"`
	CreatedBy        string          `json:"created_by"`
	CreatedAt        time.Time       `json:"created_at"`
	IsCancelled      bool            `json:"is_cancelled"`
	CancelledAt      *time.Time      `json:"cancelled_at,omitempty"`
	CancelledBy      string          `json:"cancelled_by,omitempty"`
	CancelReason     string          `json:"cancel_reason,omitempty"`
}

type BillDesignation struct {
	BillID         string     `json:"bill_id"`
	CastID         string     `json:"cast_id"`
	ExtensionCount int        `json:"extension_count"`
	IsDesignated   bool       `json:"is_designated"`
	DesignatedAt   *time.Time `json:"designated_at,omitempty"`
}

// PriceAdjustment is an immutable staff-entered delta on a bill total.
// Discounts carry a negative Delta.
type PriceAdjustment struct {
	ID             string         `json:"id"`
	BillID         string         `json:"bill_id"`
	OrderID        string         `json:"order_id,omitempty"`
	Type           AdjustmentType `json:"type"`
	OriginalAmount int64          `json:"original_amount"`
	Delta          int64          `json:"delta"`
	Reason         string         `json:"reason"`
	StaffID        string         `json:"staff_id"`
	CreatedAt      time.Time      `json:"created_at"`
}

type CastAssignment struct {
	ID         string     `json:"id"`
	BillID     string     `json:"bill_id"`
	CastID     string     `json:"cast_id"`
	Active     bool       `json:"active"`
	AssignedBy string     `json:"assigned_by"`
	AssignedAt time.Time  `json:"assigned_at"`
	RemovedAt  *time.Time `json:"removed_at,omitempty"`
}

type CastMember struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Username     string    `json:"username"`
	PINHash      string    `json:"-"`
	HourlyRate   int64     `json:"hourly_rate"`
	TransportFee int64     `json:"transport_fee"`
	ReferredBy   string    `json:"referred_by,omitempty"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
}

type CastShift struct {
	ID                 string         `json:"id"`
	CastID             string         `json:"cast_id"`
	StoreID            int64          `json:"store_id"`
	ClockIn            time.Time      `json:"clock_in"`
	ClockOut           *time.Time     `json:"clock_out,omitempty"`
	ClockInStatus      ApprovalStatus `json:"clock_in_status"`
	ClockOutStatus     ApprovalStatus `json:"clock_out_status,omitempty"`
	ClockInReviewedBy  string         `json:"clock_in_reviewed_by,omitempty"`
	ClockInReviewedAt  *time.Time     `json:"clock_in_reviewed_at,omitempty"`
	ClockOutReviewedBy string         `json:"clock_out_reviewed_by,omitempty"`
	ClockOutReviewedAt *time.Time     `json:"clock_out_reviewed_at,omitempty"`
	IsLatePickup       bool           `json:"is_late_pickup"`
	LatePickupStart    *time.Time     `json:"late_pickup_start,omitempty"`
	Notes              string         `json:"notes,omitempty"`
}

func (s CastShift) IsOpen() bool {
	return s.ClockOut == nil
}

type StoreSetting struct {
	Key       string    `json:"key"`
	Value     int64     `json:"value"`
	UpdatedBy string    `json:"updated_by,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

type DailyReportSnapshot struct {
	StoreID          int64          `json:"store_id"`
	BusinessDate     string         `json:"business_date"`
	TotalSales       int64          `json:"total_sales"`
	CardSales        int64          `json:"card_sales"`
	TotalGroups      int            `json:"total_groups"`
	AvgPerCustomer   int64          `json:"avg_per_customer"`
	IsWeekendHoliday bool           `json:"is_weekend_holiday"`
	BonusTier        int            `json:"bonus_tier"`
	BonusPerPoint    int64          `json:"bonus_per_point"`
	HourlyEntries    map[string]int `json:"hourly_entries"`
	SavedBy          string         `json:"saved_by"`
	SavedAt          time.Time      `json:"saved_at"`
}

// CastDailyEarnings is the persisted payroll line for one cast member and business day.
type CastDailyEarnings struct {
	CastID        string    `json:"cast_id"`
	BusinessDate  string    `json:"business_date"`
	WorkMinutes   int       `json:"work_minutes"`
	TimePay       int64     `json:"time_pay"`
	Backs         int64     `json:"backs"`
	TotalPoints   int64     `json:"total_points"`
	BonusAmount   int64     `json:"bonus_amount"`
	Subtotal      int64     `json:"subtotal"`
	AfterTax      int64     `json:"after_tax"`
	WelfareFee    int64     `json:"welfare_fee"`
	TransportFee  int64     `json:"transport_fee"`
	NetPayout     int64     `json:"net_payout"`
	ReferralBonus int64     `json:"referral_bonus"`
	SavedBy       string    `json:"saved_by"`
	SavedAt       time.Time `json:"saved_at"`
}

type AuditLog struct {
	ID            string    `json:"id"`
	StoreID       int64     `json:"store_id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}

// UserAccount is an internal persistence model for staff credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

type Actor struct {
	Username string
	Role     string
	CastID   string
}

// CastOrder is an order attributed to a cast member joined with the bill
// facts payroll needs. Consumers is the number of cast assigned to the bill.
type CastOrder struct {
	Order
	StoreID   int64 `json:"store_id"`
	Consumers int   `json:"consumers"`
}

// ShiftFilter narrows shift listings; zero values match everything.
type ShiftFilter struct {
	StoreID int64
	CastID  string
	From    time.Time
	To      time.Time
}
