package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"orderdesk/internal"
	"orderdesk/internal/pipeline"
	"orderdesk/internal/storage"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type customerRequest struct {
	ID       *int    `json:"id"`
	Name     *string `json:"name"`
	Nickname *string `json:"nickname"`
	Address  *string `json:"address"`
	Remarks  *string `json:"remarks"`
}

func (req customerRequest) apply(c *internal.Customer) {
	if req.Name != nil {
		c.Name = strings.TrimSpace(*req.Name)
	}
	if req.Nickname != nil {
		if nick := strings.TrimSpace(*req.Nickname); nick != "" {
			c.Nickname = &nick
		} else {
			c.Nickname = nil
		}
	}
	if req.Address != nil {
		c.Address = strings.TrimSpace(*req.Address)
	}
	if req.Remarks != nil {
		c.Remarks = *req.Remarks
	}
}

func (s *Server) listCustomers(w http.ResponseWriter, _ *http.Request) {
	customers, err := s.db.ListCustomers()
	if err != nil {
		s.internalError(w, "list customers failed", err)
		return
	}
	writeJSON(w, http.StatusOK, customers)
}

func (s *Server) createCustomer(w http.ResponseWriter, r *http.Request) {
	var req customerRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	var c internal.Customer
	req.apply(&c)
	if c.Name == "" {
		writeError(w, http.StatusBadRequest, "名称为必填字段")
		return
	}
	if req.ID != nil {
		if *req.ID < storage.MinCustomerID || *req.ID > storage.MaxCustomerID {
			writeError(w, http.StatusBadRequest, "客户ID必须是7位数字且大于等于1000000")
			return
		}
		c.ID = *req.ID
	}

	created, err := s.db.InsertCustomer(c)
	if errors.Is(err, storage.ErrDuplicateID) {
		writeError(w, http.StatusBadRequest, "客户ID已存在")
		return
	}
	if errors.Is(err, storage.ErrCustomerIDsExhausted) {
		writeError(w, http.StatusConflict, "客户ID已用完")
		return
	}
	if err != nil {
		s.internalError(w, "insert customer failed", err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) updateCustomer(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	c, err := s.db.GetCustomer(id)
	if err != nil {
		s.internalError(w, "get customer failed", err)
		return
	}
	if c == nil {
		writeError(w, http.StatusNotFound, ErrCustomerNotFound.Error())
		return
	}

	var req customerRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	req.apply(c)
	if c.Name == "" {
		writeError(w, http.StatusBadRequest, "名称为必填字段")
		return
	}
	if _, err := s.db.UpdateCustomer(*c); err != nil {
		s.internalError(w, "update customer failed", err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) deleteCustomer(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	deleted, err := s.db.DeleteCustomer(id)
	if err != nil {
		s.internalError(w, "delete customer failed", err)
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, ErrCustomerNotFound.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) importCustomers(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	file, _, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "请选择要导入的文件")
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "请选择要导入的文件")
		return
	}

	imported, err := pipeline.ImportCustomersFromXLSX(s.db, content)
	var rowErr *pipeline.ImportError
	switch {
	case err == nil:
	case errors.Is(err, pipeline.ErrEmptyImport):
		writeError(w, http.StatusBadRequest, "文件内容为空或格式不正确")
		return
	case errors.As(err, &rowErr):
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "数据格式不正确", "details": rowErr.Error(), "row": rowErr.Row})
		return
	case errors.Is(err, storage.ErrDuplicateID):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "客户ID已存在", "details": err.Error()})
		return
	default:
		// Anything else is a workbook excelize could not read.
		s.logger.Info("customer import rejected", "error", err)
		writeError(w, http.StatusBadRequest, "文件内容为空或格式不正确")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": fmt.Sprintf("成功导入 %d 条客户数据", len(imported)),
	})
}

func (s *Server) exportCustomers(w http.ResponseWriter, _ *http.Request) {
	customers, err := s.db.ListCustomers()
	if err != nil {
		s.internalError(w, "list customers failed", err)
		return
	}
	book, err := pipeline.CustomersWorkbook(customers)
	if err != nil {
		s.internalError(w, "build customers workbook failed", err)
		return
	}
	defer book.Close()

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", "attachment; filename=customers.xlsx")
	if err := book.Write(w); err != nil {
		s.logger.Error("write customers workbook failed", "error", err)
	}
}
