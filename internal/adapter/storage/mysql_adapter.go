package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/ghshop/storefront/internal/core/domain"
	"github.com/ghshop/storefront/internal/port"
)

const invoicePageSize = 10

// MySQLAdapter is the relational store behind invoices, invoice lines, the
// catalog stock rows and user identities. It also executes stock settlement:
// the only code path that ever decreases product_items.quantity.
type MySQLAdapter struct {
	db *sql.DB
}

func NewMySQLAdapter(db *sql.DB) *MySQLAdapter {
	return &MySQLAdapter{db: db}
}

// CreateInvoice writes the invoice row and every line in one transaction.
func (m *MySQLAdapter) CreateInvoice(ctx context.Context, inv domain.Invoice) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO invoices
			(invoice_id, status, payment, payment_id, user_id, user_name,
			 email, phone_number, province, district, ward, detail_address,
			 note, shipping_fee, stock_settled, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		inv.InvoiceID, inv.Status, inv.Payment, nullString(inv.PaymentID),
		inv.UserID, inv.UserName, inv.Email, inv.PhoneNumber,
		inv.Province, inv.District, inv.Ward, inv.DetailAddress,
		inv.Note, inv.ShippingFee, inv.StockSettled, inv.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert invoice: %w", err)
	}

	for _, l := range inv.Lines {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO invoice_lines
				(invoice_id, product_id, item_id, product_name, product_code,
				 color, storage, category_name, provider_name, thumbnail,
				 quantity, price, discount)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			inv.InvoiceID, l.ProductID, l.ItemID, l.ProductName, l.ProductCode,
			l.Color, l.Storage, l.CategoryName, l.ProviderName, l.Thumbnail,
			l.Quantity, l.Price, l.Discount,
		)
		if err != nil {
			return fmt.Errorf("insert invoice line %s: %w", l.ItemID, err)
		}
	}

	return tx.Commit()
}

func (m *MySQLAdapter) GetInvoice(ctx context.Context, invoiceID string) (*domain.Invoice, error) {
	inv, err := m.scanInvoice(m.db.QueryRowContext(ctx, `
		SELECT invoice_id, status, payment, payment_id, user_id, user_name,
		       email, phone_number, province, district, ward, detail_address,
		       note, shipping_fee, stock_settled, created_at, done_at
		FROM invoices WHERE invoice_id = ?`, invoiceID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query invoice: %w", err)
	}

	lines, err := m.getLines(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	inv.Lines = lines
	return inv, nil
}

func (m *MySQLAdapter) ListInvoices(ctx context.Context, f port.InvoiceFilter) ([]domain.Invoice, error) {
	where, args := invoiceFilterClause(f)

	page := f.Page
	if page < 1 {
		page = 1
	}
	args = append(args, invoicePageSize, (page-1)*invoicePageSize)

	rows, err := m.db.QueryContext(ctx, `
		SELECT invoice_id, status, payment, payment_id, user_id, user_name,
		       email, phone_number, province, district, ward, detail_address,
		       note, shipping_fee, stock_settled, created_at, done_at
		FROM invoices`+where+`
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("query invoices: %w", err)
	}
	defer rows.Close()

	var invoices []domain.Invoice
	for rows.Next() {
		inv, err := m.scanInvoice(rows)
		if err != nil {
			return nil, fmt.Errorf("scan invoice: %w", err)
		}
		invoices = append(invoices, *inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate invoices: %w", err)
	}

	for i := range invoices {
		lines, err := m.getLines(ctx, invoices[i].InvoiceID)
		if err != nil {
			return nil, err
		}
		invoices[i].Lines = lines
	}
	return invoices, nil
}

func (m *MySQLAdapter) CountInvoices(ctx context.Context, f port.InvoiceFilter) (int, error) {
	where, args := invoiceFilterClause(f)

	var count int
	err := m.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM invoices`+where, args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count invoices: %w", err)
	}
	return count, nil
}

func (m *MySQLAdapter) UpdateInvoice(ctx context.Context, invoiceID string, p port.InvoicePatch) (*domain.Invoice, error) {
	sets := make([]string, 0, 4)
	args := make([]any, 0, 5)

	if p.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, *p.Status)
	}
	if p.Payment != nil {
		sets = append(sets, "payment = ?")
		args = append(args, *p.Payment)
	}
	if p.PaymentID != nil {
		sets = append(sets, "payment_id = ?")
		args = append(args, *p.PaymentID)
	}
	if p.DoneAt != nil {
		sets = append(sets, "done_at = ?")
		args = append(args, *p.DoneAt)
	}

	if len(sets) > 0 {
		args = append(args, invoiceID)
		_, err := m.db.ExecContext(ctx,
			"UPDATE invoices SET "+strings.Join(sets, ", ")+" WHERE invoice_id = ?",
			args...)
		if err != nil {
			return nil, fmt.Errorf("update invoice: %w", err)
		}
	}

	inv, err := m.GetInvoice(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if inv == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrInvoiceNotFound, invoiceID)
	}
	return inv, nil
}

// SettleStock claims the invoice's settlement flag and decrements the stock
// of every line inside one transaction. Each decrement is conditional on
// sufficient remaining stock; zero rows affected on any line aborts the whole
// batch, which also rolls the claim back.
func (m *MySQLAdapter) SettleStock(ctx context.Context, invoiceID string, lines []domain.InvoiceLine) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		UPDATE invoices SET stock_settled = 1
		WHERE invoice_id = ? AND stock_settled = 0`, invoiceID)
	if err != nil {
		return fmt.Errorf("claim settlement: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrAlreadySettled
	}

	for _, l := range lines {
		result, err := tx.ExecContext(ctx, `
			UPDATE product_items SET quantity = quantity - ?
			WHERE item_id = ? AND quantity >= ?`,
			l.Quantity, l.ItemID, l.Quantity,
		)
		if err != nil {
			return fmt.Errorf("%w: decrement item %s: %v", domain.ErrSettlement, l.ItemID, err)
		}
		rows, _ := result.RowsAffected()
		if rows == 0 {
			return fmt.Errorf("%w: item %s short of stock", domain.ErrSettlement, l.ItemID)
		}
	}

	return tx.Commit()
}

// ReleaseStock is the compensating restock after an abort of a settled
// invoice. The flag un-claim makes it exactly-once, same as settlement.
func (m *MySQLAdapter) ReleaseStock(ctx context.Context, invoiceID string, lines []domain.InvoiceLine) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		UPDATE invoices SET stock_settled = 0
		WHERE invoice_id = ? AND stock_settled = 1`, invoiceID)
	if err != nil {
		return fmt.Errorf("release settlement: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrNotSettled
	}

	for _, l := range lines {
		_, err := tx.ExecContext(ctx, `
			UPDATE product_items SET quantity = quantity + ?
			WHERE item_id = ?`,
			l.Quantity, l.ItemID,
		)
		if err != nil {
			return fmt.Errorf("restock item %s: %w", l.ItemID, err)
		}
	}

	return tx.Commit()
}

// GetStockItems reads current stock rows for exactly the requested keys.
func (m *MySQLAdapter) GetStockItems(ctx context.Context, reqs []domain.LineRequest) (map[string]domain.StockItem, error) {
	if len(reqs) == 0 {
		return map[string]domain.StockItem{}, nil
	}

	itemIDs := make([]string, 0, len(reqs))
	productIDs := make([]string, 0, len(reqs))
	seenItems := make(map[string]bool, len(reqs))
	seenProducts := make(map[string]bool, len(reqs))
	for _, r := range reqs {
		if !seenItems[r.ItemID] {
			seenItems[r.ItemID] = true
			itemIDs = append(itemIDs, r.ItemID)
		}
		if !seenProducts[r.ProductID] {
			seenProducts[r.ProductID] = true
			productIDs = append(productIDs, r.ProductID)
		}
	}

	query := `
		SELECT item_id, product_id, product_name, product_code, color, storage,
		       category_name, provider_name, thumbnail, quantity, price, discount
		FROM product_items
		WHERE item_id IN (` + placeholders(len(itemIDs)) + `)
		  AND product_id IN (` + placeholders(len(productIDs)) + `)`

	args := make([]any, 0, len(itemIDs)+len(productIDs))
	for _, id := range itemIDs {
		args = append(args, id)
	}
	for _, id := range productIDs {
		args = append(args, id)
	}

	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query stock items: %w", err)
	}
	defer rows.Close()

	items := make(map[string]domain.StockItem, len(reqs))
	for rows.Next() {
		var it domain.StockItem
		if err := rows.Scan(
			&it.ItemID, &it.ProductID, &it.ProductName, &it.ProductCode,
			&it.Color, &it.Storage, &it.CategoryName, &it.ProviderName,
			&it.Thumbnail, &it.Quantity, &it.Price, &it.Discount,
		); err != nil {
			return nil, fmt.Errorf("scan stock item: %w", err)
		}
		items[it.ItemID] = it
	}
	return items, rows.Err()
}

func (m *MySQLAdapter) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	var u domain.User
	err := m.db.QueryRowContext(ctx, `
		SELECT user_id, user_name FROM users WHERE user_id = ?`, userID,
	).Scan(&u.UserID, &u.UserName)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query user: %w", err)
	}
	return &u, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (m *MySQLAdapter) scanInvoice(row rowScanner) (*domain.Invoice, error) {
	var inv domain.Invoice
	var paymentID sql.NullString
	var doneAt sql.NullTime

	err := row.Scan(
		&inv.InvoiceID, &inv.Status, &inv.Payment, &paymentID,
		&inv.UserID, &inv.UserName, &inv.Email, &inv.PhoneNumber,
		&inv.Province, &inv.District, &inv.Ward, &inv.DetailAddress,
		&inv.Note, &inv.ShippingFee, &inv.StockSettled, &inv.CreatedAt, &doneAt,
	)
	if err != nil {
		return nil, err
	}

	inv.PaymentID = paymentID.String
	if doneAt.Valid {
		t := doneAt.Time
		inv.DoneAt = &t
	}
	return &inv, nil
}

func (m *MySQLAdapter) getLines(ctx context.Context, invoiceID string) ([]domain.InvoiceLine, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT invoice_id, product_id, item_id, product_name, product_code,
		       color, storage, category_name, provider_name, thumbnail,
		       quantity, price, discount
		FROM invoice_lines WHERE invoice_id = ?`, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("query invoice lines: %w", err)
	}
	defer rows.Close()

	var lines []domain.InvoiceLine
	for rows.Next() {
		var l domain.InvoiceLine
		if err := rows.Scan(
			&l.InvoiceID, &l.ProductID, &l.ItemID, &l.ProductName, &l.ProductCode,
			&l.Color, &l.Storage, &l.CategoryName, &l.ProviderName, &l.Thumbnail,
			&l.Quantity, &l.Price, &l.Discount,
		); err != nil {
			return nil, fmt.Errorf("scan invoice line: %w", err)
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func invoiceFilterClause(f port.InvoiceFilter) (string, []any) {
	var conds []string
	var args []any

	if f.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, f.Status)
	}
	if f.UserID != "" {
		conds = append(conds, "user_id = ?")
		args = append(args, f.UserID)
	}
	if f.UserName != "" {
		conds = append(conds, "LOWER(user_name) LIKE ?")
		args = append(args, "%"+strings.ToLower(f.UserName)+"%")
	}
	if f.InvoiceID != "" {
		conds = append(conds, "invoice_id = ?")
		args = append(args, f.InvoiceID)
	}
	if f.CreatedOn != nil {
		start := time.Date(f.CreatedOn.Year(), f.CreatedOn.Month(), f.CreatedOn.Day(),
			0, 0, 0, 0, f.CreatedOn.Location())
		conds = append(conds, "created_at >= ? AND created_at < ?")
		args = append(args, start, start.AddDate(0, 0, 1))
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
