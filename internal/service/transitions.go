package service

import (
	"github.com/itam-hq/be-procurement/internal/repository"
)

// Action is a named workflow operation on a proposal.
type Action string

const (
	ActionApproveTeam          Action = "approve_team"
	ActionConsultIT            Action = "consult_it"
	ActionReviewFinance        Action = "review_finance"
	ActionApproveDirector      Action = "approve_director"
	ActionStartPurchasing      Action = "start_purchasing"
	ActionConfirmPayment       Action = "confirm_payment"
	ActionConfirmGoodsReceived Action = "confirm_goods_received"
	ActionConfirmHandover      Action = "confirm_handover"
	ActionConfirmInvoice       Action = "confirm_invoice"
	ActionReject               Action = "reject"
)

// AllActions lists every workflow action the engine accepts.
func AllActions() []Action {
	return []Action{
		ActionApproveTeam, ActionConsultIT, ActionReviewFinance,
		ActionApproveDirector, ActionStartPurchasing, ActionConfirmPayment,
		ActionConfirmGoodsReceived, ActionConfirmHandover, ActionConfirmInvoice,
		ActionReject,
	}
}

// Known reports whether a is a recognized action name.
func (a Action) Known() bool {
	switch a {
	case ActionApproveTeam, ActionConsultIT, ActionReviewFinance,
		ActionApproveDirector, ActionStartPurchasing, ActionConfirmPayment,
		ActionConfirmGoodsReceived, ActionConfirmHandover, ActionConfirmInvoice,
		ActionReject:
		return true
	}
	return false
}

// validFrom is the exhaustive whitelist of (action, source state) pairs. Any
// pair not listed is an invalid transition.
var validFrom = map[Action][]repository.ProposalStatus{
	ActionApproveTeam:     {repository.StatusNew},
	ActionConsultIT:       {repository.StatusTeamApproved},
	ActionReviewFinance:   {repository.StatusITConsulted},
	ActionApproveDirector: {repository.StatusFinanceReviewed},

	ActionStartPurchasing:      {repository.StatusApproved},
	ActionConfirmPayment:       {repository.StatusApproved},
	ActionConfirmGoodsReceived: {repository.StatusApproved},
	ActionConfirmHandover:      {repository.StatusApproved},
	ActionConfirmInvoice:       {repository.StatusApproved},

	ActionReject: {
		repository.StatusNew, repository.StatusTeamApproved,
		repository.StatusITConsulted, repository.StatusFinanceReviewed,
	},
}

// transitionAllowed reports whether action may be invoked from status.
func transitionAllowed(action Action, status repository.ProposalStatus) bool {
	for _, s := range validFrom[action] {
		if s == status {
			return true
		}
	}
	return false
}

// actionPermission maps each action to the permission code that grants it.
// approve_team additionally accepts the proposer's department manager, which
// the engine checks separately; admins bypass every guard.
var actionPermission = map[Action]repository.PermissionCode{
	ActionApproveTeam:          repository.PermApproveTeam,
	ActionConsultIT:            repository.PermConsultIT,
	ActionReviewFinance:        repository.PermReviewFinance,
	ActionApproveDirector:      repository.PermApproveDirector,
	ActionStartPurchasing:      repository.PermExecutePurchase,
	ActionConfirmPayment:       repository.PermExecuteAccounting,
	ActionConfirmGoodsReceived: repository.PermConfirmDelivery,
	ActionConfirmHandover:      repository.PermConfirmDelivery,
	ActionConfirmInvoice:       repository.PermExecuteAccounting,
}

// rejectPermission maps each rejectable state to the permission allowed to
// reject from it: the approver of the stage the proposal is waiting on. Kept
// as a table rather than a branch ladder so a policy change is a one-line
// edit.
var rejectPermission = map[repository.ProposalStatus]repository.PermissionCode{
	repository.StatusNew:             repository.PermApproveTeam,
	repository.StatusTeamApproved:    repository.PermConsultIT,
	repository.StatusITConsulted:     repository.PermReviewFinance,
	repository.StatusFinanceReviewed: repository.PermApproveDirector,
}
