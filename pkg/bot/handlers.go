package bot

import (
	"context"

	tele "gopkg.in/telebot.v3"

	"transferhub/pkg/logger"
	"transferhub/pkg/models"
)

func (b *Bot) handleStart(c tele.Context) error {
	menu := &tele.ReplyMarkup{ResizeKeyboard: true}
	menu.Reply(
		menu.Row(menu.Text(messages["en"]["btn_queue"]), menu.Text(messages["en"]["btn_health"])),
		menu.Row(menu.Text(messages["en"]["btn_backlog"])),
	)
	return c.Send(messages["en"]["welcome"], menu)
}

func (b *Bot) handleQueue(c tele.Context) error {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	companies, err := b.Svc.Diagnostics().ListActiveCompaniesOrdered(ctx)
	if err != nil {
		return b.replyError(c, "queue", err)
	}
	if len(companies) == 0 {
		return c.Send(messages["en"]["queue_empty"])
	}
	return c.Send(FormatQueue(companies), tele.ModeHTML)
}

func (b *Bot) handleHealth(c tele.Context) error {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	report, err := b.Svc.Diagnostics().HealthScore(ctx)
	if err != nil {
		return b.replyError(c, "health", err)
	}
	return c.Send(FormatHealth(report), tele.ModeHTML)
}

func (b *Bot) handleAssign(c tele.Context) error {
	ids, err := ParseIDs(c.Args(), 1)
	if err != nil {
		return c.Send(messages["en"]["usage_assign"])
	}
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	assignment, err := b.Svc.Dispatch().Assign(ctx, ids[0], nil)
	if err != nil {
		return c.Send(FormatError(err), tele.ModeHTML)
	}
	return c.Send(FormatAssignment(assignment), tele.ModeHTML)
}

func (b *Bot) handleOverride(c tele.Context) error {
	ids, err := ParseIDs(c.Args(), 2)
	if err != nil {
		return c.Send(messages["en"]["usage_override"])
	}
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	assignment, err := b.Svc.Dispatch().Override(ctx, ids[0], ids[1])
	if err != nil {
		return c.Send(FormatError(err), tele.ModeHTML)
	}
	b.Log.Info("manual override from operator",
		logger.Int64("booking_id", ids[0]),
		logger.Int64("company_id", ids[1]),
		logger.Int64("operator_id", c.Sender().ID),
	)
	return c.Send(FormatAssignment(assignment), tele.ModeHTML)
}

func (b *Bot) handleRenumber(c tele.Context) error {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	res, err := b.Svc.Diagnostics().RenumberPositions(ctx)
	if err != nil {
		return b.replyError(c, "renumber", err)
	}
	return c.Send(FormatRenumber(res))
}

func (b *Bot) handleResetPrompt(c tele.Context) error {
	menu := &tele.ReplyMarkup{}
	menu.Inline(menu.Row(btnResetConfirm, btnResetCancel))
	return c.Send(messages["en"]["reset_confirm"], menu)
}

func (b *Bot) handleResetConfirm(c tele.Context) error {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	res, err := b.Svc.Diagnostics().ResetQueue(ctx)
	if err != nil {
		_ = c.Respond(&tele.CallbackResponse{Text: "Reset failed", ShowAlert: true})
		return b.replyError(c, "reset", err)
	}
	b.Log.Warning("queue reset from operator", logger.Int64("operator_id", c.Sender().ID))
	_ = c.Respond()
	return c.Edit(FormatReset(res))
}

func (b *Bot) handleResetCancel(c tele.Context) error {
	_ = c.Respond()
	return c.Edit(messages["en"]["reset_cancel"])
}

func (b *Bot) handleMoveToEnd(c tele.Context) error {
	ids, err := ParseIDs(c.Args(), 1)
	if err != nil {
		return c.Send(messages["en"]["usage_moveend"])
	}
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	company, err := b.Svc.Diagnostics().MoveToEnd(ctx, ids[0])
	if err != nil {
		return c.Send(FormatError(err), tele.ModeHTML)
	}
	return c.Send(FormatCompany(company), tele.ModeHTML)
}

func (b *Bot) handleStatus(c tele.Context) error {
	args := c.Args()
	if len(args) != 2 {
		return c.Send(messages["en"]["usage_status"])
	}
	ids, err := ParseIDs(args[:1], 1)
	if err != nil {
		return c.Send(messages["en"]["usage_status"])
	}
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	company, err := b.Svc.Queue().SetCompanyStatus(ctx, ids[0], models.CompanyStatus(args[1]))
	if err != nil {
		return c.Send(FormatError(err), tele.ModeHTML)
	}
	return c.Send(FormatCompany(company), tele.ModeHTML)
}

func (b *Bot) handleBacklog(c tele.Context) error {
	if b.backlog == nil {
		return c.Send(messages["en"]["backlog_off"])
	}
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	res, err := b.backlog.ProcessBacklog(ctx)
	if err != nil {
		return b.replyError(c, "backlog", err)
	}
	return c.Send(FormatBacklog(res))
}

func (b *Bot) replyError(c tele.Context, op string, err error) error {
	b.Log.Error("operator command failed", logger.String("command", op), logger.Error(err))
	return c.Send(FormatError(err), tele.ModeHTML)
}
