package usecase

import (
	"context"
	"strings"
	"time"

	"storefront/internal/contracts"
	"storefront/internal/domain/model"
	repo "storefront/internal/repository"

	"github.com/google/uuid"
)

// 注文イベントの発行先（Kafkaなど）。nilなら発行しない。
type EventPublisher interface {
	Publish(ctx context.Context, ev contracts.Event) error
}

// 金額計算の設定。すべて整数で確定的に計算する。
type Pricing struct {
	TaxRateBP       int64 // 税率（basis points、1000=10%）
	ShippingFee     int64
	FreeShippingMin int64 // 0なら送料無料なし
}

// 小計から送料・税・合計を計算する。
// tax = subtotal * TaxRateBP / 10000（切り捨て）
func (p Pricing) Quote(subtotal int64) (shipping int64, tax int64, total int64) {
	shipping = p.ShippingFee
	if p.FreeShippingMin > 0 && subtotal >= p.FreeShippingMin {
		shipping = 0
	}
	tax = subtotal * p.TaxRateBP / 10000
	total = subtotal + shipping + tax
	return shipping, tax, total
}

// OrderUsecase は注文の作成・参照・キャンセル・返品要求。
// 複数行の更新（在庫減算＋注文作成＋カートクリア）は必ず1トランザクション。
type OrderUsecase struct {
	tx      repo.TransactionManager
	pricing Pricing
	events  EventPublisher
}

func NewOrderUsecase(tx repo.TransactionManager, pricing Pricing, events EventPublisher) *OrderUsecase {
	return &OrderUsecase{tx: tx, pricing: pricing, events: events}
}

type PlaceOrderInput struct {
	ShippingMethod string
	PaymentMethod  string
	IdempotencyKey string
}

type OrderItemOutput struct {
	ProductID int64  `json:"product_id"`
	Name      string `json:"name"`
	Price     int64  `json:"price"`
	Quantity  int64  `json:"quantity"`
}

type OrderOutput struct {
	ID            int64             `json:"id"`
	OrderNumber   string            `json:"order_number"`
	UserID        int64             `json:"user_id"`
	Status        string            `json:"status"`
	PaymentStatus string            `json:"payment_status"`
	Subtotal      int64             `json:"subtotal"`
	ShippingFee   int64             `json:"shipping_fee"`
	Tax           int64             `json:"tax"`
	Total         int64             `json:"total"`
	CreatedAt     time.Time         `json:"created_at"`
	Items         []OrderItemOutput `json:"items"`
}

// PlaceOrder はACTIVEカートを注文に変換する。
// 在庫は明細ごとに条件付きUPDATEで確定チェックし、
// 1行でも足りなければ全体を失敗させる（足りなかった商品名を返す）。
func (u *OrderUsecase) PlaceOrder(ctx context.Context, userID int64, in PlaceOrderInput) (OrderOutput, error) {
	if userID <= 0 {
		return OrderOutput{}, newUnauthorized()
	}
	key := strings.TrimSpace(in.IdempotencyKey)
	if key == "" || len(key) > 255 {
		return OrderOutput{}, newValidationError("invalid idempotency_key")
	}

	var out OrderOutput
	var created bool

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		// 同じキーなら同じ結果
		existing, found, err := r.Orders().FindByIdempotencyKey(ctx, userID, key)
		if err != nil {
			return newInternal()
		}
		if found {
			items, err := r.OrderItems().ListByOrderID(ctx, existing.ID)
			if err != nil {
				return newInternal()
			}
			out = toOrderOutput(existing, items)
			return nil
		}

		//ACTIVEカート取得
		cart, err := r.Carts().FindActiveByUserID(ctx, userID)
		if err == repo.ErrNotFound {
			return newValidationError("cart empty")
		}
		if err != nil {
			return newInternal()
		}

		cartItems, err := r.CartItems().ListByCartID(ctx, cart.ID)
		if err != nil {
			return newInternal()
		}
		if len(cartItems) == 0 {
			return newValidationError("cart empty")
		}

		// 在庫を確定時に再チェックして減らす。
		// 足りない行があってもループは最後まで回し、不足商品を全部集めて返す。
		// エラーを返せばトランザクションごとロールバックされるので
		// 途中の減算が残ることはない。
		orderItems := make([]model.OrderItem, 0, len(cartItems))
		var subtotal int64 = 0
		var short []string

		for _, ci := range cartItems {
			p, err := r.Products().FindByID(ctx, ci.ProductID)
			if err == repo.ErrNotFound {
				return newValidationError("invalid product in cart")
			}
			if err != nil {
				return newInternal()
			}
			if !p.IsActive {
				return newValidationError("invalid product in cart")
			}

			ok, err := r.Inventory().DecreaseStockIfEnough(ctx, ci.ProductID, ci.Quantity)
			if err != nil {
				return newInternal()
			}
			if !ok {
				short = append(short, p.Name)
				continue
			}

			//スナップショット
			orderItems = append(orderItems, model.OrderItem{
				ProductID:           ci.ProductID,
				ProductNameSnapshot: p.Name,
				UnitPriceSnapshot:   ci.UnitPriceSnapshot,
				Quantity:            ci.Quantity,
				CreatedAt:           time.Now(),
			})

			subtotal += ci.UnitPriceSnapshot * ci.Quantity
		}

		if len(short) > 0 {
			return newInsufficientStock(short)
		}

		shipping, tax, total := u.pricing.Quote(subtotal)

		// 注文作成
		now := time.Now()
		order := model.Order{
			OrderNumber:    newOrderNumber(now),
			UserID:         userID,
			Status:         model.OrderStatusPending,
			PaymentStatus:  model.PaymentStatusUnpaid,
			Subtotal:       subtotal,
			ShippingFee:    shipping,
			Tax:            tax,
			Total:          total,
			ShippingMethod: strings.TrimSpace(in.ShippingMethod),
			PaymentMethod:  strings.TrimSpace(in.PaymentMethod),
			IdempotencyKey: key,
			CreatedAt:      now,
			UpdatedAt:      now,
		}

		orderID, err := r.Orders().Create(ctx, order)
		if err != nil {
			//競合（同時に同じキーが入った等）はもう一回検索して同じ結果を返す
			ex2, found2, err2 := r.Orders().FindByIdempotencyKey(ctx, userID, key)
			if err2 == nil && found2 {
				items2, err3 := r.OrderItems().ListByOrderID(ctx, ex2.ID)
				if err3 != nil {
					return newInternal()
				}
				out = toOrderOutput(ex2, items2)
				return nil
			}

			//order_number衝突はまず起きないが、一度だけ振り直す
			order.OrderNumber = newOrderNumber(time.Now())
			orderID, err = r.Orders().Create(ctx, order)
			if err != nil {
				return newInternal()
			}
		}

		//注文明細一括作成
		if err := r.OrderItems().CreateBulk(ctx, orderID, orderItems); err != nil {
			return newInternal()
		}

		//カートをCHECKED_OUTにして、明細をクリア（再注文防止）
		if err := r.Carts().UpdateStatus(ctx, cart.ID, model.CartStatusCheckedOut); err != nil {
			return newInternal()
		}
		if err := r.Carts().Clear(ctx, cart.ID); err != nil {
			return newInternal()
		}

		order.ID = orderID
		out = toOrderOutput(order, orderItems)
		created = true
		return nil
	})

	if err != nil {
		return OrderOutput{}, err
	}

	if created {
		u.publish(ctx, contracts.EventOrderCreated, out, map[string]any{
			"total": out.Total,
		})
	}
	return out, nil
}

// CancelMyOrder は本人の注文をキャンセルする。
// PENDING/PROCESSINGのみ可。明細分の在庫を戻す。
// 支払い済みならpayment_statusをREFUNDEDにして返金行を残す。
func (u *OrderUsecase) CancelMyOrder(ctx context.Context, userID int64, orderID int64) (OrderOutput, error) {
	if userID <= 0 {
		return OrderOutput{}, newUnauthorized()
	}
	if orderID <= 0 {
		return OrderOutput{}, newValidationError("invalid id")
	}

	var out OrderOutput

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		o, err := r.Orders().FindByID(ctx, orderID)
		if err == repo.ErrNotFound {
			return newNotFound()
		}
		if err != nil {
			return newInternal()
		}
		if o.UserID != userID {
			//他人の注文は「存在しない扱い」にする
			return newNotFound()
		}

		if !o.Status.CanCancel() {
			return newInvalidTransition("order cannot be cancelled from " + string(o.Status))
		}

		items, err := r.OrderItems().ListByOrderID(ctx, orderID)
		if err != nil {
			return newInternal()
		}

		//在庫戻し
		for _, it := range items {
			if err := r.Inventory().IncreaseStock(ctx, it.ProductID, it.Quantity); err != nil {
				return newInternal()
			}
		}

		if err := r.Orders().UpdateStatus(ctx, orderID, model.OrderStatusCancelled); err != nil {
			return newInternal()
		}

		if o.PaymentStatus == model.PaymentStatusPaid {
			if err := r.Orders().UpdatePaymentStatus(ctx, orderID, model.PaymentStatusRefunded); err != nil {
				return newInternal()
			}
			if _, err := r.Payments().Create(ctx, model.Payment{
				OrderID: orderID,
				Status:  model.PaymentStatusRefunded,
				Amount:  -o.Total,
				Method:  o.PaymentMethod,
				Note:    "refund on cancel",
			}); err != nil {
				return newInternal()
			}
			o.PaymentStatus = model.PaymentStatusRefunded
		}

		o.Status = model.OrderStatusCancelled
		out = toOrderOutput(o, items)
		return nil
	})

	if err != nil {
		return OrderOutput{}, err
	}

	u.publish(ctx, contracts.EventOrderCancelled, out, nil)
	return out, nil
}

// RequestReturn は配達済みの注文に返品要求を立てる。
// 承認（RETURNED、在庫戻し）は管理者のステータス更新で行う。
func (u *OrderUsecase) RequestReturn(ctx context.Context, userID int64, orderID int64) (OrderOutput, error) {
	if userID <= 0 {
		return OrderOutput{}, newUnauthorized()
	}
	if orderID <= 0 {
		return OrderOutput{}, newValidationError("invalid id")
	}

	var out OrderOutput

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		o, err := r.Orders().FindByID(ctx, orderID)
		if err == repo.ErrNotFound {
			return newNotFound()
		}
		if err != nil {
			return newInternal()
		}
		if o.UserID != userID {
			return newNotFound()
		}

		if !o.Status.CanTransitionTo(model.OrderStatusReturnRequested) {
			return newInvalidTransition("return allowed only for delivered orders")
		}

		if err := r.Orders().UpdateStatus(ctx, orderID, model.OrderStatusReturnRequested); err != nil {
			return newInternal()
		}

		items, err := r.OrderItems().ListByOrderID(ctx, orderID)
		if err != nil {
			return newInternal()
		}

		o.Status = model.OrderStatusReturnRequested
		out = toOrderOutput(o, items)
		return nil
	})

	if err != nil {
		return OrderOutput{}, err
	}

	u.publish(ctx, contracts.EventOrderReturnRequested, out, nil)
	return out, nil
}

func (u *OrderUsecase) ListMyOrders(ctx context.Context, userID int64, page int, limit int) ([]OrderOutput, error) {
	if userID <= 0 {
		return []OrderOutput{}, newUnauthorized()
	}
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 50
	}

	var outs []OrderOutput

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		orders, _, err := r.Orders().ListByUserID(ctx, userID, page, limit)
		if err != nil {
			return newInternal()
		}

		outs = make([]OrderOutput, 0, len(orders))
		for _, o := range orders {
			items, err := r.OrderItems().ListByOrderID(ctx, o.ID)
			if err != nil {
				return newInternal()
			}
			outs = append(outs, toOrderOutput(o, items))
		}
		return nil
	})

	if err != nil {
		return []OrderOutput{}, err
	}
	return outs, nil
}

func (u *OrderUsecase) GetMyOrderDetail(ctx context.Context, userID int64, orderID int64) (OrderOutput, error) {
	if userID <= 0 {
		return OrderOutput{}, newUnauthorized()
	}
	if orderID <= 0 {
		return OrderOutput{}, newValidationError("invalid id")
	}

	var out OrderOutput

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		o, err := r.Orders().FindByID(ctx, orderID)
		if err == repo.ErrNotFound {
			return newNotFound()
		}
		if err != nil {
			return newInternal()
		}
		if o.UserID != userID {
			return newNotFound()
		}

		items, err := r.OrderItems().ListByOrderID(ctx, orderID)
		if err != nil {
			return newInternal()
		}

		out = toOrderOutput(o, items)
		return nil
	})

	if err != nil {
		return OrderOutput{}, err
	}
	return out, nil
}

// コミット後のイベント発行。失敗しても注文結果には影響させない。
func (u *OrderUsecase) publish(ctx context.Context, eventType string, o OrderOutput, payload map[string]any) {
	if u.events == nil {
		return
	}

	_ = u.events.Publish(ctx, contracts.Event{
		EventID:     uuid.NewString(),
		Type:        eventType,
		OrderID:     o.ID,
		OrderNumber: o.OrderNumber,
		UserID:      o.UserID,
		CreatedAt:   time.Now().UTC(),
		Payload:     payload,
	})
}

// 人が読める注文番号（ORD-日付-8桁）。一意制約はDB側で担保。
func newOrderNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return "ORD-" + now.Format("20060102") + "-" + suffix
}

func toOrderOutput(o model.Order, items []model.OrderItem) OrderOutput {
	outItems := make([]OrderItemOutput, 0, len(items))
	for _, it := range items {
		outItems = append(outItems, OrderItemOutput{
			ProductID: it.ProductID,
			Name:      it.ProductNameSnapshot,
			Price:     it.UnitPriceSnapshot,
			Quantity:  it.Quantity,
		})
	}

	return OrderOutput{
		ID:            o.ID,
		OrderNumber:   o.OrderNumber,
		UserID:        o.UserID,
		Status:        string(o.Status),
		PaymentStatus: string(o.PaymentStatus),
		Subtotal:      o.Subtotal,
		ShippingFee:   o.ShippingFee,
		Tax:           o.Tax,
		Total:         o.Total,
		CreatedAt:     o.CreatedAt,
		Items:         outItems,
	}
}
