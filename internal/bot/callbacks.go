package bot

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"moviebot/internal/lifecycle"
)

var methodsByAction = map[lifecycle.ActionKind]lifecycle.FulfillmentMethod{
	lifecycle.ActionMethodSearch: lifecycle.MethodSearch,
	lifecycle.ActionMethodLink:   lifecycle.MethodLink,
	lifecycle.ActionMethodUpload: lifecycle.MethodUpload,
}

// dispatchAction runs a decoded button press and returns the toast to show
func (b *Bot) dispatchAction(ctx context.Context, query *tgbotapi.CallbackQuery, action lifecycle.Action) (string, error) {
	userID := query.From.ID

	switch action.Kind {
	case lifecycle.ActionSelectMovie:
		movie, err := b.ctrl.OnSearchSelected(ctx, userID, action.Index)
		if err != nil {
			return "", err
		}
		return movie.Title, nil

	case lifecycle.ActionNoneCorrect:
		return "", b.ctrl.OnNoneCorrect(ctx, userID)

	case lifecycle.ActionConfirm, lifecycle.ActionCancel:
		messageID := 0
		if query.Message != nil {
			messageID = query.Message.MessageID
		}
		user := lifecycle.User{ID: userID, Name: displayName(query.From)}
		result, err := b.ctrl.OnConfirm(ctx, user, action.Kind == lifecycle.ActionConfirm, messageID)
		if err != nil {
			return "", err
		}
		return confirmNotice(result.Outcome), nil

	case lifecycle.ActionApprove:
		if _, err := b.ctrl.OnAdminApprove(ctx, userID, action.RequestID); err != nil {
			return "", err
		}
		return "Approved", nil

	case lifecycle.ActionReject:
		if _, err := b.ctrl.OnAdminReject(ctx, userID, action.RequestID); err != nil {
			return "", err
		}
		return "Rejected", nil

	case lifecycle.ActionMethodSearch, lifecycle.ActionMethodLink, lifecycle.ActionMethodUpload:
		outcome, err := b.ctrl.OnFulfillmentMethod(ctx, userID, action.RequestID, methodsByAction[action.Kind])
		if err != nil {
			return "", err
		}
		return methodNotice(outcome), nil

	case lifecycle.ActionSendVersion:
		outcome, err := b.ctrl.OnAdminSelectVersion(ctx, userID, action.RequestID, action.MessageID)
		if err != nil {
			return "", err
		}
		return submitNotice(outcome), nil

	case lifecycle.ActionSelectQuality:
		if _, err := b.ctrl.OnUserSelectQuality(ctx, userID, action.RequestID, action.MessageID); err != nil {
			return "", err
		}
		return "Sending…", nil
	}

	return "", fmt.Errorf("unhandled action %q", action.Kind)
}

func confirmNotice(outcome lifecycle.ConfirmOutcome) string {
	switch outcome {
	case lifecycle.Cancelled:
		return "Cancelled"
	case lifecycle.AlreadyAvailable:
		return "Already available"
	case lifecycle.AlreadyRequested:
		return "Already requested"
	case lifecycle.Submitted:
		return "Request sent"
	}
	return ""
}

func methodNotice(outcome lifecycle.MethodOutcome) string {
	switch outcome {
	case lifecycle.AwaitingLink:
		return "Send the link"
	case lifecycle.AwaitingUpload:
		return "Send the file"
	case lifecycle.NoFileFound:
		return "Nothing found in the channel"
	case lifecycle.Fulfilled:
		return "Fulfilled"
	case lifecycle.AwaitingUserChoice:
		return "The user picks a version"
	}
	return ""
}

func submitNotice(outcome lifecycle.SubmitOutcome) string {
	switch outcome {
	case lifecycle.FulfilledNow:
		return "Fulfilled"
	case lifecycle.ExtraAdded:
		return "Added as an extra version"
	case lifecycle.DuplicateContent:
		return "Already attached"
	}
	return ""
}
