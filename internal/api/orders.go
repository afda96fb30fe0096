package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"orderdesk/internal"
	"orderdesk/internal/pipeline"
)

// orderRequest carries both create and update bodies. Nil fields keep the
// stored value on update.
type orderRequest struct {
	CustomerID   *int     `json:"customerId"`
	CustomerName *string  `json:"customerName"`
	ProductName  *string  `json:"productName"`
	Quantity     *float64 `json:"quantity"`
	UnitPrice    *float64 `json:"unitPrice"`
	DeliveryDate *string  `json:"deliveryDate"`
	Remarks      *string  `json:"remarks"`
}

type orderWithCustomer struct {
	internal.OrderRecord
	Customer *internal.Customer `json:"customer"`
}

func (s *Server) listOrders(w http.ResponseWriter, _ *http.Request) {
	orders, err := s.db.ListOrders()
	if err != nil {
		s.internalError(w, "list orders failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": orders})
}

func (s *Server) createOrder(w http.ResponseWriter, r *http.Request) {
	var req orderRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}

	var o internal.OrderRecord
	if msg := applyOrderRequest(&o, req); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}
	if o.ProductName == "" || o.Quantity <= 0 {
		writeError(w, http.StatusBadRequest, "产品和数量为必填字段")
		return
	}

	switch {
	case req.CustomerID != nil:
		c, err := s.db.GetCustomer(*req.CustomerID)
		if err != nil {
			s.internalError(w, "get customer failed", err)
			return
		}
		if c == nil {
			writeError(w, http.StatusNotFound, ErrCustomerNotFound.Error())
			return
		}
		o.CustomerID, o.CustomerName = c.ID, c.Name
	case o.CustomerName != "":
		c, created, err := s.intake.FindOrCreateCustomer(o.CustomerName)
		if err != nil {
			s.internalError(w, "find or create customer failed", err)
			return
		}
		if created {
			s.logger.Info("customer created from order", "customerId", c.ID, "name", c.Name)
		}
		o.CustomerID, o.CustomerName = c.ID, c.Name
	default:
		writeError(w, http.StatusBadRequest, "客户为必填字段")
		return
	}
	if o.DeliveryDate == "" {
		o.DeliveryDate = s.intake.DefaultDeliveryDate()
	}

	created, err := s.db.InsertOrder(o)
	if err != nil {
		s.internalError(w, "insert order failed", err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) getOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	o, err := s.db.GetOrder(id)
	if err != nil {
		s.internalError(w, "get order failed", err)
		return
	}
	if o == nil {
		writeError(w, http.StatusNotFound, ErrOrderNotFound.Error())
		return
	}
	c, err := s.db.GetCustomer(o.CustomerID)
	if err != nil {
		s.internalError(w, "get customer failed", err)
		return
	}
	writeJSON(w, http.StatusOK, orderWithCustomer{OrderRecord: *o, Customer: c})
}

// updateOrder merges the body over the stored order and recomputes the
// total from quantity and unit price.
func (s *Server) updateOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	o, err := s.db.GetOrder(id)
	if err != nil {
		s.internalError(w, "get order failed", err)
		return
	}
	if o == nil {
		writeError(w, http.StatusNotFound, ErrOrderNotFound.Error())
		return
	}

	var req orderRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	if msg := applyOrderRequest(o, req); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	// A new customer name moves the order to that customer.
	switch {
	case req.CustomerID != nil:
		c, err := s.db.GetCustomer(*req.CustomerID)
		if err != nil {
			s.internalError(w, "get customer failed", err)
			return
		}
		if c == nil {
			writeError(w, http.StatusNotFound, ErrCustomerNotFound.Error())
			return
		}
		o.CustomerID, o.CustomerName = c.ID, c.Name
	case req.CustomerName != nil:
		if o.CustomerName == "" {
			writeError(w, http.StatusBadRequest, "客户为必填字段")
			return
		}
		c, created, err := s.intake.FindOrCreateCustomer(o.CustomerName)
		if err != nil {
			s.internalError(w, "find or create customer failed", err)
			return
		}
		if created {
			s.logger.Info("customer created from order", "customerId", c.ID, "name", c.Name)
		}
		o.CustomerID, o.CustomerName = c.ID, c.Name
	}

	if _, err := s.db.UpdateOrder(*o); err != nil {
		s.internalError(w, "update order failed", err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (s *Server) searchOrders(w http.ResponseWriter, r *http.Request) {
	f, ok := orderFilter(w, r)
	if !ok {
		return
	}
	rows, err := s.db.GetOrderExportRows(f)
	if err != nil {
		s.internalError(w, "search orders failed", err)
		return
	}
	customers := map[int]*internal.Customer{}
	out := make([]orderWithCustomer, 0, len(rows))
	for _, row := range rows {
		c, seen := customers[row.CustomerID]
		if !seen {
			if c, err = s.db.GetCustomer(row.CustomerID); err != nil {
				s.internalError(w, "get customer failed", err)
				return
			}
			customers[row.CustomerID] = c
		}
		out = append(out, orderWithCustomer{OrderRecord: row.OrderRecord, Customer: c})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) exportOrders(w http.ResponseWriter, r *http.Request) {
	f, ok := orderFilter(w, r)
	if !ok {
		return
	}
	rows, err := s.db.GetOrderExportRows(f)
	if err != nil {
		s.internalError(w, "export orders failed", err)
		return
	}
	book, err := pipeline.OrdersWorkbook(rows)
	if err != nil {
		s.internalError(w, "build orders workbook failed", err)
		return
	}
	defer book.Close()

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", "attachment; filename=orders.xlsx")
	if err := book.Write(w); err != nil {
		s.logger.Error("write orders workbook failed", "error", err)
	}
}

func (s *Server) batchDeleteOrders(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OrderIDs []int `json:"orderIds"`
	}
	if !s.decodeJSON(w, r, &req) {
		return
	}
	if len(req.OrderIDs) == 0 {
		writeError(w, http.StatusBadRequest, "请选择要删除的订单")
		return
	}

	n, err := s.db.DeleteOrders(req.OrderIDs)
	if err != nil {
		s.internalError(w, "delete orders failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": fmt.Sprintf("成功删除 %d 条订单", n),
		"deleted": n,
	})
}

// applyOrderRequest copies the set fields of req into o. It returns a
// message for the client when a value is invalid.
func applyOrderRequest(o *internal.OrderRecord, req orderRequest) string {
	if req.CustomerName != nil {
		o.CustomerName = strings.TrimSpace(*req.CustomerName)
	}
	if req.ProductName != nil {
		o.ProductName = strings.TrimSpace(*req.ProductName)
	}
	if req.Quantity != nil {
		if *req.Quantity <= 0 {
			return "数量必须大于0"
		}
		o.Quantity = *req.Quantity
	}
	if req.UnitPrice != nil {
		if *req.UnitPrice < 0 {
			return "单价不能为负数"
		}
		unit := *req.UnitPrice
		o.UnitPrice = &unit
	}
	if req.DeliveryDate != nil {
		o.DeliveryDate = strings.TrimSpace(*req.DeliveryDate)
	}
	if req.Remarks != nil {
		o.Remarks = *req.Remarks
	}

	o.TotalPrice = nil
	if o.UnitPrice != nil {
		total := decimal.NewFromFloat(o.Quantity).Mul(decimal.NewFromFloat(*o.UnitPrice)).Round(2).InexactFloat64()
		o.TotalPrice = &total
	}
	return ""
}

func orderFilter(w http.ResponseWriter, r *http.Request) (internal.OrderFilter, bool) {
	q := r.URL.Query()
	f := internal.OrderFilter{
		StartDate: strings.TrimSpace(q.Get("startDate")),
		EndDate:   strings.TrimSpace(q.Get("endDate")),
	}
	if raw := strings.TrimSpace(q.Get("customerId")); raw != "" {
		id, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid customerId")
			return f, false
		}
		f.CustomerID = &id
	}
	return f, true
}
