package domain

import (
	"fmt"
	"strings"
)

// ChatbotCategory selects the persona a chatbot answers with.
type ChatbotCategory string

const (
	CategoryCustomerSupport  ChatbotCategory = "customer_support"
	CategorySales            ChatbotCategory = "sales"
	CategoryProductFAQ       ChatbotCategory = "product_faq"
	CategoryTechnicalSupport ChatbotCategory = "technical_support"
	CategoryGeneral          ChatbotCategory = "general"
)

// ParseChatbotCategory maps unknown categories to general.
func ParseChatbotCategory(s string) ChatbotCategory {
	switch c := ChatbotCategory(strings.ToLower(strings.TrimSpace(s))); c {
	case CategoryCustomerSupport, CategorySales, CategoryProductFAQ, CategoryTechnicalSupport:
		return c
	default:
		return CategoryGeneral
	}
}

// RolePrompt returns the system prompt for the category.
func (c ChatbotCategory) RolePrompt(businessName string) string {
	switch c {
	case CategoryCustomerSupport:
		return fmt.Sprintf(`You are a friendly and helpful customer support representative for %s.
Your goal is to assist customers with their inquiries and concerns in a professional and empathetic manner.
Use the provided context to answer questions accurately. If the answer isn't in the context, be honest and say so.`, businessName)
	case CategorySales:
		return fmt.Sprintf(`You are an experienced sales consultant for %s.
Your role is to understand customer needs and recommend suitable products or services.
Use the provided context to give accurate information about our offerings.`, businessName)
	case CategoryProductFAQ:
		return fmt.Sprintf(`You are a product expert for %s.
Your role is to provide clear and accurate information about our products and services.
Base your answers on the provided context and explain concepts in simple terms.`, businessName)
	case CategoryTechnicalSupport:
		return fmt.Sprintf(`You are a technical support specialist for %s.
Your role is to help users solve technical problems efficiently.
Use the provided context to give accurate technical guidance.`, businessName)
	default:
		return fmt.Sprintf(`You are a knowledgeable assistant for %s.
Your role is to provide helpful and accurate information based on the provided context.
Be friendly and professional in your responses.`, businessName)
	}
}
