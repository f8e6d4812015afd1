package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gartstein/solarcrm/internal/crm/db"
	"github.com/gartstein/solarcrm/internal/crm/models"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// exportLimit caps the rows written to one workbook.
const exportLimit = 50000

var (
	customerColumns = []string{"Number", "Type", "Name", "ID / Business number", "Email", "Phone", "Mobile", "Address", "Active", "Created"}
	leadColumns     = []string{"Number", "Status", "Source", "Contact", "Email", "Phone", "Address", "System size (kWp)", "Assigned to", "Converted", "Created"}
)

// sheet writes rows into the first sheet of a new workbook.
type sheet struct {
	f    *excelize.File
	name string
	row  int
}

func newSheet(name string, header []string) (*sheet, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", name); err != nil {
		return nil, err
	}
	s := &sheet{f: f, name: name}
	if err := s.append(toCells(header)...); err != nil {
		return nil, err
	}
	style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, err
	}
	last, err := excelize.CoordinatesToCellName(len(header), 1)
	if err != nil {
		return nil, err
	}
	if err := f.SetCellStyle(name, "A1", last, style); err != nil {
		return nil, err
	}
	return s, nil
}

func toCells(values []string) []interface{} {
	cells := make([]interface{}, len(values))
	for i, v := range values {
		cells[i] = v
	}
	return cells
}

func (s *sheet) append(values ...interface{}) error {
	s.row++
	cell, err := excelize.CoordinatesToCellName(1, s.row)
	if err != nil {
		return err
	}
	return s.f.SetSheetRow(s.name, cell, &values)
}

func (h *HTTPHandler) writeWorkbook(w http.ResponseWriter, r *http.Request, s *sheet, filename string) {
	defer s.f.Close()
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	if err := s.f.Write(w); err != nil {
		h.logger.Error("Failed to write export", zap.String("path", r.URL.Path), zap.Error(err))
	}
}

func exportName(entity string, now time.Time) string {
	return fmt.Sprintf("%s-%s.xlsx", entity, now.Format("20060102"))
}

// exportCustomers writes every customer matching the list filters.
func (h *HTTPHandler) exportCustomers(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	f, err := customerFilter(r.URL.Query())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	s, err := newSheet("Customers", customerColumns)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	f.PageSize = db.MaxPageSize
	for f.Page = 1; (f.Page-1)*f.PageSize < exportLimit; f.Page++ {
		found, _, err := h.Customers.ListCustomers(r.Context(), f)
		if err != nil {
			s.f.Close()
			h.writeError(w, r, err)
			return
		}
		for i := range found {
			if err := s.append(customerRow(&found[i])...); err != nil {
				s.f.Close()
				h.writeError(w, r, err)
				return
			}
		}
		if len(found) < f.PageSize {
			break
		}
	}
	h.writeWorkbook(w, r, s, exportName("customers", time.Now()))
}

func customerRow(c *models.Customer) []interface{} {
	identity := c.IDNumber
	if c.CustomerType == models.CustomerBusiness {
		identity = c.BusinessNumber
	}
	return []interface{}{
		c.CustomerNumber,
		string(c.CustomerType),
		c.DisplayName(),
		identity,
		c.Email,
		c.Phone,
		c.Mobile,
		c.FullAddress(),
		c.IsActive,
		c.CreatedAt.Format(time.DateOnly),
	}
}

// exportLeads writes every lead matching the list filters.
func (h *HTTPHandler) exportLeads(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	f, err := leadFilter(r.URL.Query())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	s, err := newSheet("Leads", leadColumns)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	f.PageSize = db.MaxPageSize
	for f.Page = 1; (f.Page-1)*f.PageSize < exportLimit; f.Page++ {
		found, _, err := h.Leads.ListLeads(r.Context(), f)
		if err != nil {
			s.f.Close()
			h.writeError(w, r, err)
			return
		}
		for i := range found {
			if err := s.append(leadRow(&found[i])...); err != nil {
				s.f.Close()
				h.writeError(w, r, err)
				return
			}
		}
		if len(found) < f.PageSize {
			break
		}
	}
	h.writeWorkbook(w, r, s, exportName("leads", time.Now()))
}

func leadRow(l *models.Lead) []interface{} {
	var size interface{} = ""
	if l.EstimatedSystemSize.Valid {
		size, _ = l.EstimatedSystemSize.Decimal.Float64()
	}
	assignee := ""
	if l.AssignedTo != nil {
		assignee = *l.AssignedTo
	}
	return []interface{}{
		l.LeadNumber,
		string(l.Status),
		string(l.LeadSource),
		l.ContactName,
		l.Email,
		l.Phone,
		l.FullAddress(),
		size,
		assignee,
		l.Converted(),
		l.CreatedAt.Format(time.DateOnly),
	}
}
