package service

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"wachat/internal/constants"
	"wachat/internal/errors"
	"wachat/internal/models"
	"wachat/internal/privacy"
	"wachat/internal/validation"
	"wachat/pkg/whatsapp"
	"wachat/pkg/whatsapp/types"
)

// Reconciler keeps thread messages and delivery records consistent. It owns
// outbound routing (session window vs template), the delivery state machine,
// and retry re-dispatch. It is the only component that mutates delivery state.
type Reconciler interface {
	// RouteOutbound decides how a freshly created outbound message reaches
	// the provider, creates its delivery record, and attempts the first send.
	RouteOutbound(ctx context.Context, msg *models.ThreadMessage, conv *models.Conversation) error

	// ApplyDeliveryState applies a provider status callback to the delivery
	// record identified by providerMessageID. Stale and duplicate callbacks
	// are ignored; illegal transitions never reach the store.
	ApplyDeliveryState(ctx context.Context, providerMessageID string, state models.DeliveryState, errorDetail string) error

	// RetryDelivery re-dispatches one retryable delivery record.
	RetryDelivery(ctx context.Context, rec *models.DeliveryRecord) error
}

type reconciler struct {
	messages    MessageStore
	deliveries  DeliveryStore
	accounts    AccountStore
	attachments AttachmentStore
	client      whatsapp.Client
	logger      *logrus.Logger

	sessionWindow time.Duration
	now           func() time.Time
}

func NewReconciler(
	messages MessageStore,
	deliveries DeliveryStore,
	accounts AccountStore,
	attachments AttachmentStore,
	client whatsapp.Client,
	logger *logrus.Logger,
) Reconciler {
	return &reconciler{
		messages:      messages,
		deliveries:    deliveries,
		accounts:      accounts,
		attachments:   attachments,
		client:        client,
		logger:        logger,
		sessionWindow: constants.SessionWindowSec * time.Second,
		now:           time.Now,
	}
}

func (r *reconciler) RouteOutbound(ctx context.Context, msg *models.ThreadMessage, conv *models.Conversation) error {
	phone := validation.NormalizePhone(conv.CounterpartyPhone)
	if err := validation.ValidatePhoneNumber(phone); err != nil {
		return r.failMessage(ctx, msg.ID, errors.Wrap(err, errors.ErrCodeInvalidInput, "invalid counterparty phone"))
	}

	account, err := r.accounts.GetActiveAccount(ctx)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseQuery, "failed to resolve active account")
	}
	if account == nil {
		return r.failMessage(ctx, msg.ID, errors.New(errors.ErrCodeNoAccount, "no active provider account configured"))
	}

	rec := &models.DeliveryRecord{
		PhoneRaw:        conv.CounterpartyPhone,
		PhoneNormalized: phone,
		Direction:       models.DirectionOutbound,
		State:           models.DeliveryStateOutgoing,
		AccountID:       account.ID,
		ThreadMessageID: msg.ID,
		BodyText:        msg.Body,
		Attachments:     msg.Attachments,
	}

	inSession, err := r.inSessionWindow(ctx, conv.ID)
	if err != nil {
		return err
	}

	if !inSession {
		template, err := r.resolveTemplate(ctx, account.ID)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeDatabaseQuery, "failed to resolve template")
		}
		if template == nil {
			return r.failMessage(ctx, msg.ID, errors.New(errors.ErrCodeTemplateError,
				"no approved template available outside the session window"))
		}
		rec.TemplateID = &template.ID
		rec.TemplateLangCode = &template.LangCode
		rec.Components = []models.TemplateComponent{
			{Type: models.ComponentBody, Variables: []string{msg.Body}},
		}
	}

	recID, err := r.deliveries.CreateDeliveryRecord(ctx, rec)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseQuery, "failed to create delivery record")
	}
	rec.ID = recID

	if err := r.messages.LinkDeliveryRecord(ctx, msg.ID, recID); err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseQuery, "failed to link delivery record")
	}

	r.logger.WithFields(logrus.Fields{
		"messageId":  msg.ID,
		"deliveryId": recID,
		"phone":      privacy.MaskPhoneNumber(phone),
		"inSession":  inSession,
	}).Info("Routed outbound message")

	return r.dispatch(ctx, account, rec)
}

// inSessionWindow reports whether the counterparty wrote within the response
// window, which permits free-text sends.
func (r *reconciler) inSessionWindow(ctx context.Context, conversationID int64) (bool, error) {
	latest, err := r.messages.GetLatestInboundMessage(ctx, conversationID)
	if err != nil {
		return false, errors.Wrap(err, errors.ErrCodeDatabaseQuery, "failed to load latest inbound message")
	}
	if latest == nil {
		return false, nil
	}
	return r.now().Sub(latest.CreatedAt) <= r.sessionWindow, nil
}

// resolveTemplate prefers the approved template named "sale" and falls back
// to any approved utility template. Nil means no template-mode send is
// possible for this account.
func (r *reconciler) resolveTemplate(ctx context.Context, accountID int64) (*models.Template, error) {
	template, err := r.accounts.FindApprovedTemplateByName(ctx, accountID, constants.PreferredTemplateName)
	if err != nil || template != nil {
		return template, err
	}
	return r.accounts.FindApprovedTemplateByCategory(ctx, accountID, constants.FallbackTemplateCategory)
}

// dispatch performs one send attempt. Success moves the record to sent and
// stamps the provider message id on both records. Failure leaves the record
// outgoing with the error detail so the retry worker can pick it up; the
// thread message keeps its optimistic sent status.
func (r *reconciler) dispatch(ctx context.Context, account *models.Account, rec *models.DeliveryRecord) error {
	result := r.send(ctx, account, rec)

	if !result.Success {
		detail := result.Error
		r.logger.WithFields(logrus.Fields{
			"deliveryId": rec.ID,
			"error":      detail,
		}).Warn("Send attempt failed, leaving record for retry")

		if err := r.deliveries.UpdateDeliveryState(ctx, rec.ID, models.DeliveryStateOutgoing, &detail); err != nil {
			return errors.Wrap(err, errors.ErrCodeDatabaseQuery, "failed to record send failure")
		}
		if err := r.deliveries.IncrementDeliveryRetry(ctx, rec.ID); err != nil {
			return errors.Wrap(err, errors.ErrCodeDatabaseQuery, "failed to increment retry count")
		}
		return nil
	}

	if err := r.deliveries.SetProviderMessageID(ctx, rec.ID, result.ProviderMessageID); err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseQuery, "failed to store provider message id")
	}
	if err := r.messages.SetExternalMessageID(ctx, rec.ThreadMessageID, result.ProviderMessageID); err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseQuery, "failed to store external message id")
	}
	if err := r.deliveries.UpdateDeliveryState(ctx, rec.ID, models.DeliveryStateSent, nil); err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseQuery, "failed to mark delivery sent")
	}
	if err := r.messages.UpdateThreadDeliveryStatus(ctx, rec.ThreadMessageID, models.DeliveryStatusSent, nil); err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseQuery, "failed to mark message sent")
	}

	r.logger.WithFields(logrus.Fields{
		"deliveryId":        rec.ID,
		"providerMessageId": privacy.MaskProviderMessageID(result.ProviderMessageID),
	}).Info("Delivery sent")

	return nil
}

// send picks the provider call for a record. Every attachment goes out as
// its own media message; the body rides as the caption of the first one, so
// a captioned send delivers both. Records without attachments send free
// text. Template-mode records carry their rendered body through the same
// calls; the template reference is bookkeeping on the record.
// The record tracks the provider id of the first message; a failure partway
// through leaves the record retryable, which can resend earlier attachments.
func (r *reconciler) send(ctx context.Context, account *models.Account, rec *models.DeliveryRecord) *types.SendResult {
	if len(rec.Attachments) == 0 {
		return r.client.SendText(ctx, account, rec.PhoneNormalized, rec.BodyText)
	}

	var first *types.SendResult
	for i, att := range rec.Attachments {
		meta, data, err := r.attachments.GetAttachmentData(ctx, att.ID)
		if err != nil {
			return &types.SendResult{Success: false, Error: fmt.Sprintf("failed to load attachment %d: %v", att.ID, err)}
		}
		if meta == nil || len(data) == 0 {
			return &types.SendResult{Success: false, Error: fmt.Sprintf("attachment %d has no stored payload", att.ID)}
		}

		caption := ""
		if i == 0 {
			caption = rec.BodyText
		}
		result := r.client.SendMedia(ctx, account, rec.PhoneNormalized,
			mediaTypeFor(meta.MimeType), base64.StdEncoding.EncodeToString(data), meta.FileName, caption)
		if !result.Success {
			return result
		}
		if first == nil {
			first = result
		}
	}
	return first
}

func (r *reconciler) ApplyDeliveryState(ctx context.Context, providerMessageID string, state models.DeliveryState, errorDetail string) error {
	rec, err := r.deliveries.GetDeliveryRecordByProviderID(ctx, providerMessageID)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseQuery, "failed to look up delivery record")
	}
	if rec == nil {
		return errors.New(errors.ErrCodeNotFound, "no delivery record for provider message id").
			WithContext("providerMessageId", privacy.MaskProviderMessageID(providerMessageID))
	}

	if rec.State == state {
		return nil
	}
	if !rec.State.CanTransition(state) {
		r.logger.WithFields(logrus.Fields{
			"deliveryId": rec.ID,
			"from":       rec.State,
			"to":         state,
		}).Debug("Ignoring stale delivery state callback")
		return nil
	}

	if state == models.DeliveryStateError {
		detail := errorDetail
		if detail == "" {
			detail = "provider reported delivery error"
		}
		if err := r.deliveries.SetDeliveryFailure(ctx, rec.ID, models.FailureAPIError, detail); err != nil {
			return errors.Wrap(err, errors.ErrCodeDatabaseQuery, "failed to record delivery failure")
		}
	} else {
		if err := r.deliveries.UpdateDeliveryState(ctx, rec.ID, state, nil); err != nil {
			return errors.Wrap(err, errors.ErrCodeDatabaseQuery, "failed to update delivery state")
		}
	}

	status, ok := state.ThreadStatus()
	if !ok {
		return nil
	}

	var msgErr *string
	if status == models.DeliveryStatusFailed && errorDetail != "" {
		msgErr = &errorDetail
	}
	if err := r.messages.UpdateThreadDeliveryStatus(ctx, rec.ThreadMessageID, status, msgErr); err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseQuery, "failed to update message status")
	}

	r.logger.WithFields(logrus.Fields{
		"deliveryId": rec.ID,
		"state":      state,
	}).Info("Applied delivery state")

	return nil
}

func (r *reconciler) RetryDelivery(ctx context.Context, rec *models.DeliveryRecord) error {
	if rec.Direction != models.DirectionOutbound {
		return nil
	}

	if rec.State == models.DeliveryStateError {
		if err := r.deliveries.UpdateDeliveryState(ctx, rec.ID, models.DeliveryStateOutgoing, rec.ErrorMessage); err != nil {
			return errors.Wrap(err, errors.ErrCodeDatabaseQuery, "failed to reset delivery for retry")
		}
		rec.State = models.DeliveryStateOutgoing
	}
	if rec.State != models.DeliveryStateOutgoing {
		return nil
	}

	account, err := r.accounts.GetActiveAccount(ctx)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseQuery, "failed to resolve active account")
	}
	if account == nil {
		if err := r.deliveries.SetDeliveryFailure(ctx, rec.ID, models.FailureNoAccount, "no active provider account configured"); err != nil {
			return errors.Wrap(err, errors.ErrCodeDatabaseQuery, "failed to record account failure")
		}
		detail := "no active provider account configured"
		return r.messages.UpdateThreadDeliveryStatus(ctx, rec.ThreadMessageID, models.DeliveryStatusFailed, &detail)
	}

	return r.dispatch(ctx, account, rec)
}

// failMessage marks the thread message failed with a user-readable reason and
// returns the original error. No delivery record exists at this point.
func (r *reconciler) failMessage(ctx context.Context, messageID int64, appErr *errors.AppError) error {
	detail := appErr.Message
	if err := r.messages.UpdateThreadDeliveryStatus(ctx, messageID, models.DeliveryStatusFailed, &detail); err != nil {
		r.logger.WithError(err).WithField("messageId", messageID).Error("Failed to mark message failed")
	}
	return appErr
}

func mediaTypeFor(mimeType string) string {
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return "image"
	case strings.HasPrefix(mimeType, "audio/"):
		return "audio"
	case strings.HasPrefix(mimeType, "video/"):
		return "video"
	default:
		return "document"
	}
}
