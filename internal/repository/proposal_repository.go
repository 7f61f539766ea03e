package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/itam-hq/be-procurement/internal/platform/database"
	"github.com/itam-hq/be-procurement/internal/platform/errors"
)

// proposalColumns is the SELECT list shared by every proposal read.
const proposalColumns = `
	id, name, proposal_date, proposer_id, proposer_department_id,
	scope, quantity, currency, status,
	subtotal, vat_percent, vat_amount, total_amount,
	team_approved_by, team_approved_at, team_note,
	it_consulted_by, it_consulted_at, it_note,
	finance_reviewed_by, finance_reviewed_at, finance_note,
	director_approved_by, director_approved_at, director_note,
	supplier_info, rejection_reason, rejected_by, rejected_at,
	current_stage_deadline,
	purchasing_started_by, purchasing_started_at,
	payment_confirmed_by, payment_confirmed_at,
	goods_received_by, goods_received_at,
	handed_over_by, handed_over_at,
	invoice_received_by, invoice_received_at,
	linked_receipt_id,
	created_by, created_at, updated_by, updated_at`

// ProposalRepository handles proposal data operations.
type ProposalRepository struct {
	db *database.DB
}

// NewProposalRepository creates a new proposal repository.
func NewProposalRepository(db *database.DB) *ProposalRepository {
	return &ProposalRepository{db: db}
}

// Create inserts a proposal and its items in one transaction.
func (r *ProposalRepository) Create(ctx context.Context, p *Proposal) error {
	return r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		query := `
			INSERT INTO config_proposals
			    (name, proposal_date, proposer_id, proposer_department_id,
			     scope, quantity, currency, status,
			     subtotal, vat_percent, vat_amount, total_amount,
			     current_stage_deadline, created_by)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8::proposal_status,
			        $9, $10, $11, $12, $13, $14)
			RETURNING id, created_at, updated_at
		`

		err := tx.QueryRow(ctx, query,
			p.Name,
			p.ProposalDate,
			p.ProposerID,
			p.ProposerDepartmentID,
			p.Scope,
			p.Quantity,
			p.Currency,
			p.Status,
			p.Subtotal,
			p.VATPercent,
			p.VATAmount,
			p.TotalAmount,
			p.CurrentStageDeadline,
			p.CreatedBy,
		).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to create proposal")
		}

		return r.insertItems(ctx, tx, p)
	})
}

// GetByID retrieves a proposal with all of its items.
func (r *ProposalRepository) GetByID(ctx context.Context, id string) (*Proposal, error) {
	query := `SELECT` + proposalColumns + ` FROM config_proposals WHERE id = $1`

	p, err := scanProposal(r.db.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("proposal", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get proposal")
	}

	items, err := r.getItems(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	p.Items = items
	return p, nil
}

// List retrieves proposals matching the filter, newest first, with the total
// match count for pagination.
func (r *ProposalRepository) List(ctx context.Context, f ProposalFilter) ([]*Proposal, int64, error) {
	query := `SELECT` + proposalColumns + ` FROM config_proposals WHERE 1=1`
	countQuery := `SELECT COUNT(*) FROM config_proposals WHERE 1=1`

	args := []any{}
	argCount := 1

	addClause := func(clause string, value any) {
		cond := fmt.Sprintf(clause, argCount)
		query += cond
		countQuery += cond
		args = append(args, value)
		argCount++
	}

	if f.Status != nil {
		addClause(" AND status = $%d::proposal_status", *f.Status)
	}
	if f.ProposerID != nil {
		addClause(" AND proposer_id = $%d", *f.ProposerID)
	}
	if f.FromDate != nil {
		addClause(" AND proposal_date >= $%d", *f.FromDate)
	}
	if f.ToDate != nil {
		addClause(" AND proposal_date <= $%d", *f.ToDate)
	}
	if f.OverdueAt != nil {
		addClause(" AND current_stage_deadline IS NOT NULL AND current_stage_deadline < $%d"+
			" AND status NOT IN ('completed', 'rejected')", *f.OverdueAt)
	}

	query += " ORDER BY created_at DESC"
	query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", argCount, argCount+1)
	queryArgs := append(args, f.Limit, f.Offset)

	var total int64
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, errors.ErrCodeInternal, "failed to count proposals")
	}

	rows, err := r.db.Query(ctx, query, queryArgs...)
	if err != nil {
		return nil, 0, errors.Wrap(err, errors.ErrCodeInternal, "failed to list proposals")
	}
	defer rows.Close()

	proposals := make([]*Proposal, 0)
	for rows.Next() {
		p, err := scanProposal(rows)
		if err != nil {
			return nil, 0, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan proposal")
		}
		proposals = append(proposals, p)
	}

	return proposals, total, nil
}

// ReplaceItems applies an edit: header fields and totals are updated and all
// items replaced (delete-all-then-reinsert) in one transaction. Status is
// deliberately not part of the update.
func (r *ProposalRepository) ReplaceItems(ctx context.Context, p *Proposal) error {
	return r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		query := `
			UPDATE config_proposals
			SET name = $2,
			    proposal_date = $3,
			    scope = $4,
			    quantity = $5,
			    currency = $6,
			    subtotal = $7,
			    vat_percent = $8,
			    vat_amount = $9,
			    total_amount = $10,
			    supplier_info = $11,
			    updated_by = $12,
			    updated_at = NOW()
			WHERE id = $1
			RETURNING updated_at
		`

		err := tx.QueryRow(ctx, query,
			p.ID, p.Name, p.ProposalDate, p.Scope, p.Quantity, p.Currency,
			p.Subtotal, p.VATPercent, p.VATAmount, p.TotalAmount,
			p.SupplierInfo, p.UpdatedBy,
		).Scan(&p.UpdatedAt)
		if err == pgx.ErrNoRows {
			return errors.NotFound("proposal", p.ID)
		}
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to update proposal")
		}

		if _, err := tx.Exec(ctx, `DELETE FROM proposal_items WHERE proposal_id = $1`, p.ID); err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to clear proposal items")
		}

		return r.insertItems(ctx, tx, p)
	})
}

// UpdateWorkflow persists the workflow-mutable fields of a proposal. The
// write is conditional on the status the caller read at the start of the
// action; a mismatch means a concurrent action won and the caller must abort.
func (r *ProposalRepository) UpdateWorkflow(ctx context.Context, p *Proposal, expected ProposalStatus) error {
	query := `
		UPDATE config_proposals
		SET status = $3::proposal_status,
		    team_approved_by = $4, team_approved_at = $5, team_note = $6,
		    it_consulted_by = $7, it_consulted_at = $8, it_note = $9,
		    finance_reviewed_by = $10, finance_reviewed_at = $11, finance_note = $12,
		    director_approved_by = $13, director_approved_at = $14, director_note = $15,
		    supplier_info = $16,
		    rejection_reason = $17, rejected_by = $18, rejected_at = $19,
		    current_stage_deadline = $20,
		    purchasing_started_by = $21, purchasing_started_at = $22,
		    payment_confirmed_by = $23, payment_confirmed_at = $24,
		    goods_received_by = $25, goods_received_at = $26,
		    handed_over_by = $27, handed_over_at = $28,
		    invoice_received_by = $29, invoice_received_at = $30,
		    updated_by = $31,
		    updated_at = NOW()
		WHERE id = $1 AND status = $2::proposal_status
		RETURNING updated_at
	`

	err := r.db.QueryRow(ctx, query,
		p.ID, expected, p.Status,
		p.Team.ActorID, p.Team.At, p.Team.Note,
		p.IT.ActorID, p.IT.At, p.IT.Note,
		p.Finance.ActorID, p.Finance.At, p.Finance.Note,
		p.Director.ActorID, p.Director.At, p.Director.Note,
		p.SupplierInfo,
		p.RejectionReason, p.RejectedBy, p.RejectedAt,
		p.CurrentStageDeadline,
		p.Fulfillment.Purchasing.ActorID, p.Fulfillment.Purchasing.At,
		p.Fulfillment.Payment.ActorID, p.Fulfillment.Payment.At,
		p.Fulfillment.GoodsReceived.ActorID, p.Fulfillment.GoodsReceived.At,
		p.Fulfillment.Handover.ActorID, p.Fulfillment.Handover.At,
		p.Fulfillment.Invoice.ActorID, p.Fulfillment.Invoice.At,
		p.UpdatedBy,
	).Scan(&p.UpdatedAt)

	if err == pgx.ErrNoRows {
		// Distinguish "gone" from "someone else moved it first".
		var current ProposalStatus
		probeErr := r.db.QueryRow(ctx,
			`SELECT status FROM config_proposals WHERE id = $1`, p.ID).Scan(&current)
		if probeErr == pgx.ErrNoRows {
			return errors.NotFound("proposal", p.ID)
		}
		return errors.Newf(errors.ErrCodeConflict,
			"proposal status changed concurrently (expected %q, now %q)", expected, current)
	}
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to update proposal workflow state")
	}

	return nil
}

// LinkReceipt back-references the goods receipt once inventory records it.
func (r *ProposalRepository) LinkReceipt(ctx context.Context, id, receiptID string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE config_proposals SET linked_receipt_id = $2, updated_at = NOW() WHERE id = $1`,
		id, receiptID)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to link receipt")
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound("proposal", id)
	}
	return nil
}

// ── internals ────────────────────────────────────────────────────────────────

func (r *ProposalRepository) insertItems(ctx context.Context, tx pgx.Tx, p *Proposal) error {
	query := `
		INSERT INTO proposal_items
		    (proposal_id, product_name, product_code, quantity, unit_price, line_total)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`

	for _, item := range p.Items {
		item.ProposalID = p.ID
		err := tx.QueryRow(ctx, query,
			p.ID, item.ProductName, item.ProductCode,
			item.Quantity, item.UnitPrice, item.LineTotal,
		).Scan(&item.ID)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to insert proposal item")
		}
	}
	return nil
}

func (r *ProposalRepository) getItems(ctx context.Context, proposalID string) ([]*ProposalItem, error) {
	query := `
		SELECT id, proposal_id, product_name, product_code, quantity, unit_price, line_total
		FROM proposal_items
		WHERE proposal_id = $1
		ORDER BY created_at, id
	`

	rows, err := r.db.Query(ctx, query, proposalID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get proposal items")
	}
	defer rows.Close()

	items := make([]*ProposalItem, 0)
	for rows.Next() {
		item := &ProposalItem{}
		err := rows.Scan(
			&item.ID, &item.ProposalID, &item.ProductName, &item.ProductCode,
			&item.Quantity, &item.UnitPrice, &item.LineTotal,
		)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan proposal item")
		}
		items = append(items, item)
	}
	return items, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProposal(sc rowScanner) (*Proposal, error) {
	p := &Proposal{}
	return p, sc.Scan(
		&p.ID, &p.Name, &p.ProposalDate, &p.ProposerID, &p.ProposerDepartmentID,
		&p.Scope, &p.Quantity, &p.Currency, &p.Status,
		&p.Subtotal, &p.VATPercent, &p.VATAmount, &p.TotalAmount,
		&p.Team.ActorID, &p.Team.At, &p.Team.Note,
		&p.IT.ActorID, &p.IT.At, &p.IT.Note,
		&p.Finance.ActorID, &p.Finance.At, &p.Finance.Note,
		&p.Director.ActorID, &p.Director.At, &p.Director.Note,
		&p.SupplierInfo, &p.RejectionReason, &p.RejectedBy, &p.RejectedAt,
		&p.CurrentStageDeadline,
		&p.Fulfillment.Purchasing.ActorID, &p.Fulfillment.Purchasing.At,
		&p.Fulfillment.Payment.ActorID, &p.Fulfillment.Payment.At,
		&p.Fulfillment.GoodsReceived.ActorID, &p.Fulfillment.GoodsReceived.At,
		&p.Fulfillment.Handover.ActorID, &p.Fulfillment.Handover.At,
		&p.Fulfillment.Invoice.ActorID, &p.Fulfillment.Invoice.At,
		&p.LinkedReceiptID,
		&p.CreatedBy, &p.CreatedAt, &p.UpdatedBy, &p.UpdatedAt,
	)
}
