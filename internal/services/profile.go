package services

import (
	"fmt"
	"strings"

	"boldestate-backend/internal/models"
)

// Profile is the fixed copy of one widget variant: the preamble sent with
// every request plus the canned replies used when Gemini cannot answer.
type Profile struct {
	Variant        string
	Model          string
	Welcome        string
	QuickReplies   []string
	NotConfigured  string
	Fallback       string
	TechnicalIssue string
	context        string
}

var listings = []string{
	"Luxury Sea View Apartment, Bandra West, Mumbai - ₹2.5 Cr (3BHK, 1,250 sq ft)",
	"Modern Villa, Pune Hills, Lavale - ₹1.8 Cr (4BHK, 2,100 sq ft)",
	"Beachfront Villa, Calangute, Goa - ₹3.2 Cr (5BHK, 3,500 sq ft)",
	"Premium Penthouse, BKC, Mumbai - ₹4.5 Cr (4BHK, 2,800 sq ft)",
	"Eco-Smart Home, Kharadi, Pune - ₹1.2 Cr (3BHK, 1,400 sq ft)",
}

var agents = []string{
	"Rajesh Sharma", "Priya Patel", "Carlos Fernandes",
	"Anita Kulkarni", "Vikram Singh", "Maria D'Souza",
}

var classicProfile = &Profile{
	Variant: models.VariantClassic,
	Model:   "gemini-1.5-flash",
	Welcome: `# 🏡 Welcome to BoldEstate Assistant!

I'm your **AI real estate expert** 🏡

**I can help you with:**
• 🔍 **Property Search** - Find perfect homes
• 📊 **Market Insights** - Trends & pricing
• 📍 **Location Intel** - Neighborhood info
• 💎 **Investment Tips** - Smart advice
• 🤝 **Agent Connect** - Expert introductions

**What can I help you find today?**`,
	NotConfigured: "I apologize, but I need to be properly configured to assist you. Please contact our support team.",
	Fallback: `I apologize for the technical difficulty. As your real estate assistant, I can still help you with:

🏠 **Property Information**: We have amazing properties in Mumbai, Pune, and Goa
💰 **Price Range**: From ₹1.2 Cr to ₹4.5 Cr
📍 **Locations**: Bandra, BKC, Lavale, Kharadi, Calangute, Fontainhas

Would you like me to tell you about any specific property or location?`,
	TechnicalIssue: "I apologize for the technical issue. Please try again or contact our support team.",
	context: `You are a professional real estate agent assistant for BoldEstate, a premium real estate platform in India.

Our current featured properties include:
{{listings}}

We have expert agents: {{agents}}.

Guidelines:
- Be professional, helpful, and knowledgeable about Indian real estate
- Use Indian currency (₹ Crores/Lakhs) and measurements (sq ft)
- Provide specific property recommendations when asked
- Include market insights and investment advice
- Use markdown formatting for better readability
- Be conversational but maintain expertise
- If asked about properties outside our listings, provide general market advice
- Include relevant emojis to make responses engaging
- Offer to connect users with our agents when appropriate
`,
}

var voiceProfile = &Profile{
	Variant: models.VariantVoice,
	Model:   "gemini-1.5-flash",
	Welcome: `**🏡 Welcome to BoldEstate AI**

I'm your **smart real estate assistant** ready to help you find the perfect property!

**I can assist with:**
• 🔍 **Property Search** - Find your dream home
• 📊 **Market Analysis** - Latest trends & prices
• 📍 **Area Insights** - Neighborhood details
• 💡 **Investment Tips** - Expert advice
• 🤝 **Agent Connect** - Meet our specialists

**What would you like to explore today?**`,
	QuickReplies: []string{
		"Show Mumbai properties",
		"3BHK under ₹2 Cr",
		"Market trends 2024",
		"Connect with agent",
	},
	NotConfigured: `**🔧 Setup Needed**

I need my API key to provide intelligent responses.

**Meanwhile, I can help with:**
• 🏠 **Available Properties**: Mumbai, Pune, Goa locations
• 💰 **Price Range**: ₹1.2 Cr to ₹4.5 Cr
• 📞 **Expert Agents**: Ready to assist you

What type of property interests you?`,
	Fallback: `**🏠 Property Information Available**

I can help you with our current listings:

**💎 Premium Options:**
• Mumbai: Sea view apartments, BKC penthouses
• Pune: Hill villas, smart homes
• Goa: Beachfront properties

**💰 Price Range:** ₹1.2 Cr - ₹4.5 Cr

Which location interests you most?`,
	TechnicalIssue: "**⚠️ Technical Issue**\n\nPlease try again or contact our support team.",
	context: `You are an expert AI real estate assistant for BoldEstate, India's premium property platform.

AVAILABLE PROPERTIES:
{{listings}}

EXPERT AGENTS: {{agents}}

RESPONSE STYLE:
- Professional yet conversational tone
- Use Indian currency (₹ Crores/Lakhs) and sq ft measurements
- Include relevant emojis for engagement
- Provide specific property recommendations
- Use markdown formatting with headers and bullets
- Keep responses concise but informative
- Offer to connect with agents when appropriate
`,
}

// ProfileFor returns the profile for variant, defaulting to the voice widget.
func ProfileFor(variant string) *Profile {
	if variant == models.VariantClassic {
		return classicProfile
	}
	return voiceProfile
}

// ValidVariant reports whether variant names a known widget.
func ValidVariant(variant string) bool {
	return variant == models.VariantClassic || variant == models.VariantVoice
}

// Prompt builds the single text part sent to Gemini: the business context
// followed by the visitor's query.
func (p *Profile) Prompt(userText string) string {
	numbered := make([]string, len(listings))
	for i, l := range listings {
		numbered[i] = fmt.Sprintf("%d. %s", i+1, l)
	}

	var b strings.Builder
	b.WriteString(strings.NewReplacer(
		"{{listings}}", strings.Join(numbered, "\n"),
		"{{agents}}", strings.Join(agents, ", "),
	).Replace(p.context))
	b.WriteString("\nUser Query: ")
	b.WriteString(userText)
	return b.String()
}
