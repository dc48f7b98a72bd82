package slackbot

import (
	"fmt"

	"github.com/slack-go/slack"
	"github.com/wolfeidau/orgbot/internal/messages"
	"github.com/wolfeidau/orgbot/internal/workflow"
)

// ViewsGroup is the template group holding modal and button labels.
const ViewsGroup = "views"

// Identifiers of the input modal.
const (
	CreateOrgCallbackID = "create_org_callback"

	BlockBusinessUnit = "block_business_unit"
	InputBusinessUnit = "input_business_unit"
	BlockTeamName     = "block_team_name"
	InputTeamName     = "input_team_name"

	blockPromptActions = "block_prompt_actions"
)

var buttonLabels = map[workflow.Action]string{
	workflow.ActionIdentityConfirmed: "button_sso_confirmed",
	workflow.ActionConfirmed:         "button_confirmed",
	workflow.ActionCancelled:         "button_cancelled",
}

// createOrgModal builds the business unit and team name input form.
func createOrgModal(catalog *messages.Catalog) (slack.ModalViewRequest, error) {
	text, err := viewTexts(catalog,
		"modal_title", "modal_submit", "modal_close",
		"label_business_unit", "hint_business_unit",
		"label_team_name", "hint_team_name",
	)
	if err != nil {
		return slack.ModalViewRequest{}, err
	}

	businessUnit := slack.NewInputBlock(
		BlockBusinessUnit,
		plain(text["label_business_unit"]),
		plain(text["hint_business_unit"]),
		slack.NewPlainTextInputBlockElement(nil, InputBusinessUnit),
	)
	teamName := slack.NewInputBlock(
		BlockTeamName,
		plain(text["label_team_name"]),
		plain(text["hint_team_name"]),
		slack.NewPlainTextInputBlockElement(nil, InputTeamName),
	)

	return slack.ModalViewRequest{
		Type:       slack.VTModal,
		CallbackID: CreateOrgCallbackID,
		Title:      plain(text["modal_title"]),
		Submit:     plain(text["modal_submit"]),
		Close:      plain(text["modal_close"]),
		Blocks: slack.Blocks{
			BlockSet: []slack.Block{businessUnit, teamName},
		},
	}, nil
}

// submittedValues extracts the business unit and team name from a submitted modal,
// exactly as typed. The naming policy decides what is acceptable.
func submittedValues(view slack.View) (businessUnit, teamName string) {
	if view.State == nil {
		return "", ""
	}
	value := func(block, action string) string {
		return view.State.Values[block][action].Value
	}
	return value(BlockBusinessUnit, InputBusinessUnit), value(BlockTeamName, InputTeamName)
}

// messageBlocks renders text as a markdown section followed by one button per action.
func messageBlocks(catalog *messages.Catalog, text string, actions []workflow.Action) ([]slack.Block, error) {
	blocks := []slack.Block{
		slack.NewSectionBlock(slack.NewTextBlockObject(slack.MarkdownType, text, false, false), nil, nil),
	}
	if len(actions) == 0 {
		return blocks, nil
	}

	buttons := make([]slack.BlockElement, 0, len(actions))
	for _, action := range actions {
		key, ok := buttonLabels[action]
		if !ok {
			return nil, fmt.Errorf("no button for action %q", action)
		}
		label, err := catalog.Render(ViewsGroup, key, nil)
		if err != nil {
			return nil, err
		}

		button := slack.NewButtonBlockElement(string(action), string(action), plain(label))
		switch action {
		case workflow.ActionConfirmed, workflow.ActionIdentityConfirmed:
			button = button.WithStyle(slack.StylePrimary)
		case workflow.ActionCancelled:
			button = button.WithStyle(slack.StyleDanger)
		}
		buttons = append(buttons, button)
	}

	return append(blocks, slack.NewActionBlock(blockPromptActions, buttons...)), nil
}

func viewTexts(catalog *messages.Catalog, keys ...string) (map[string]string, error) {
	texts := make(map[string]string, len(keys))
	for _, key := range keys {
		text, err := catalog.Render(ViewsGroup, key, nil)
		if err != nil {
			return nil, err
		}
		texts[key] = text
	}
	return texts, nil
}

func plain(text string) *slack.TextBlockObject {
	return slack.NewTextBlockObject(slack.PlainTextType, text, false, false)
}
