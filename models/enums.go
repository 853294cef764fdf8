package models

type OrderStatus string

const (
	OrderStatusPending         OrderStatus = "Pending"
	OrderStatusConfirmed       OrderStatus = "Confirmed"
	OrderStatusProcessing      OrderStatus = "Processing"
	OrderStatusPartialShipped  OrderStatus = "Partial Shipped"
	OrderStatusShipped         OrderStatus = "Shipped"
	OrderStatusPartialReturned OrderStatus = "Partial Returned"
	OrderStatusReturned        OrderStatus = "Returned"
	OrderStatusCancelled       OrderStatus = "Cancelled"
)

// AllocatableOrderStatuses are the lifecycle states whose lines compete for stock.
var AllocatableOrderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusConfirmed,
	OrderStatusProcessing,
	OrderStatusPartialShipped,
}

type StockMovementType string

const (
	StockMovementTypeShipment         StockMovementType = "Shipment"
	StockMovementTypeReturn           StockMovementType = "Return"
	StockMovementTypeSampleOut        StockMovementType = "Sample Out"
	StockMovementTypeSampleReturn     StockMovementType = "Sample Return"
	StockMovementTypeAudit            StockMovementType = "Audit"
	StockMovementTypeManualAdjustment StockMovementType = "Manual Adjustment"
)

type StockReferenceType string

const (
	StockReferenceTypeOrder     StockReferenceType = "OD"
	StockReferenceTypeStatement StockReferenceType = "ST"
	StockReferenceTypeAudit     StockReferenceType = "AU"
	StockReferenceTypeSample    StockReferenceType = "SP"
	StockReferenceTypeManual    StockReferenceType = "MN"
)

type MileageType string

const (
	MileageTypeEarn  MileageType = "Earn"
	MileageTypeSpend MileageType = "Spend"
)

type MileageSource string

const (
	MileageSourceOrder  MileageSource = "Order"
	MileageSourceRefund MileageSource = "Refund"
	MileageSourceManual MileageSource = "Manual"
	MileageSourceAuto   MileageSource = "Auto"
)

type MileageStatus string

const (
	MileageStatusCompleted MileageStatus = "Completed"
	MileageStatusCancelled MileageStatus = "Cancelled"
)

type StatementType string

const (
	StatementTypeDeduction StatementType = "Deduction"
	StatementTypeReturn    StatementType = "Return"
)

type StatementStatus string

const (
	StatementStatusPending   StatementStatus = "Pending"
	StatementStatusCompleted StatementStatus = "Completed"
	StatementStatusRefunded  StatementStatus = "Refunded"
	StatementStatusRejected  StatementStatus = "Rejected"
)
