package service

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/tealeg/xlsx"

	"github.com/rl1809/marketplace/internal/core/domain"
	"github.com/rl1809/marketplace/internal/port"
)

// LedgerService answers read queries over placed orders.
type LedgerService struct {
	orders port.OrderRepository
}

func NewLedgerService(orders port.OrderRepository) *LedgerService {
	return &LedgerService{orders: orders}
}

func (s *LedgerService) BuyerOrders(ctx context.Context, p domain.Principal) ([]domain.Order, error) {
	if err := p.Require(domain.CapPurchase); err != nil {
		return nil, err
	}
	return s.orders.ListOrders(ctx, domain.OrderFilter{BuyerID: p.UserID})
}

// SellerOrders returns completed orders that include the seller, each reduced to the seller's own lines.
func (s *LedgerService) SellerOrders(ctx context.Context, p domain.Principal) ([]domain.Order, error) {
	if err := p.Require(domain.CapConfirmDelivery); err != nil {
		return nil, err
	}
	orders, err := s.orders.ListOrders(ctx, domain.OrderFilter{SellerID: p.UserID, Status: domain.OrderStatusCompleted})
	if err != nil {
		return nil, err
	}
	for i := range orders {
		orders[i].Lines = orders[i].LinesOf(p.UserID)
	}
	return orders, nil
}

func (s *LedgerService) Transactions(ctx context.Context, p domain.Principal) ([]domain.Order, error) {
	if err := p.Require(domain.CapViewLedger); err != nil {
		return nil, err
	}
	return s.orders.ListOrders(ctx, domain.OrderFilter{})
}

// GetOrder returns an order to its buyer, to admins, or to a seller with a line in it.
// Sellers only see their own lines.
func (s *LedgerService) GetOrder(ctx context.Context, p domain.Principal, id string) (*domain.Order, error) {
	order, err := s.orders.GetOrder(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load order: %w", err)
	}
	if order == nil {
		return nil, domain.ErrOrderNotFound
	}

	switch {
	case order.BuyerID == p.UserID, p.Can(domain.CapViewLedger):
		return order, nil
	case p.Can(domain.CapConfirmDelivery) && order.HasSeller(p.UserID):
		order.Lines = order.LinesOf(p.UserID)
		return order, nil
	}
	return nil, domain.ErrNotAuthorized
}

var transactionColumns = []string{
	"Order ID", "Buyer", "Sellers", "Items", "Total", "Commission",
	"Status", "Delivery", "Delivered At", "Created At",
}

// ExportTransactions writes every order as an xlsx workbook, newest first.
func (s *LedgerService) ExportTransactions(ctx context.Context, p domain.Principal, w io.Writer) error {
	orders, err := s.Transactions(ctx, p)
	if err != nil {
		return err
	}

	file := xlsx.NewFile()
	sheet, err := file.AddSheet("Transactions")
	if err != nil {
		return fmt.Errorf("add sheet: %w", err)
	}

	header := sheet.AddRow()
	for _, h := range transactionColumns {
		header.AddCell().SetString(h)
	}

	for _, o := range orders {
		row := sheet.AddRow()
		row.AddCell().SetString(o.ID)
		row.AddCell().SetString(o.BuyerID)
		row.AddCell().SetString(strings.Join(o.SellerIDs(), ","))
		row.AddCell().SetInt(len(o.Lines))
		row.AddCell().SetInt64(o.TotalAmount)
		row.AddCell().SetInt64(o.CommissionAmount)
		row.AddCell().SetString(string(o.Status))
		row.AddCell().SetString(string(o.DeliveryStatus))
		if o.DeliveredAt != nil {
			row.AddCell().SetString(o.DeliveredAt.Format(time.DateTime))
		} else {
			row.AddCell().SetString("")
		}
		row.AddCell().SetString(o.CreatedAt.Format(time.DateTime))
	}

	if err := file.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}
