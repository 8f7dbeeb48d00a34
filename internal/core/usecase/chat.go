package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/proposalforge/sotr-assistant/internal/core/domain"
)

const chatInstruction = `You are a Technical Proposal Generation Agent designed to create high-quality technical proposals based on the uploaded Statement of Technical Requirements (SOTR) document. Your responses must adhere to the following rules:

1. Never ask the user to read or access the SOTR document directly. All information must be derived from your internal search using similarity_search.
2. Use the search tools exhaustively for every query:
   - Search for exact terms, related technical terms, and component/subsystem terms.
   - Iterate through all relevant sections of the document (e.g., specifications, requirements, diagrams).
   - Validate every claim with explicit evidence from the document (include page numbers).
3. Avoid assumptions: if a requirement is not explicitly stated in the document, state this clearly and suggest possible solutions based on industry standards.
4. Output format: responses must be detailed, accurate and professional.

Always prioritize technical accuracy, use precise terminology from the document, and cite evidence with page numbers.`

// Conversation context is capped to the most recent exchanges.
const chatHistoryLimit = 3

type ChatUseCase struct {
	factory *ToolsetFactory
	loop    *AgentLoop
}

func NewChatUseCase(factory *ToolsetFactory, loop *AgentLoop) *ChatUseCase {
	return &ChatUseCase{factory: factory, loop: loop}
}

// Chat answers a free-form question grounded in document retrieval, carrying
// at most the last three exchanges as context.
func (uc *ChatUseCase) Chat(
	ctx context.Context,
	documentID, templateName, message string,
	history []domain.ChatExchange,
) (string, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return "", domain.WrapError(domain.ErrInvalidInput, "chat", fmt.Errorf("message is required"))
	}

	toolSet, doc, err := uc.factory.ForDocument(ctx, documentID, templateName)
	if err != nil {
		return "", err
	}
	if err := requireProcessed(doc); err != nil {
		return "", err
	}

	if len(history) > chatHistoryLimit {
		history = history[len(history)-chatHistoryLimit:]
	}

	var conversation strings.Builder
	for _, exchange := range history {
		if user := strings.TrimSpace(exchange.User); user != "" {
			fmt.Fprintf(&conversation, "User: %s\n", user)
		}
		if agent := strings.TrimSpace(exchange.Agent); agent != "" {
			fmt.Fprintf(&conversation, "Agent: %s\n", agent)
		}
	}
	fmt.Fprintf(&conversation, "User: %s", message)

	instruction := fmt.Sprintf("%s\n\n%s", chatInstruction, conversation.String())
	result, err := uc.loop.Run(ctx, instruction, toolSet)
	if err != nil {
		return "", fmt.Errorf("chat: %w", err)
	}
	return result.Answer, nil
}
