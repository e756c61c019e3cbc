package bot

import (
	"fmt"
	"strings"

	"keydesk/internal/analytics"
	"keydesk/internal/registry"
	"keydesk/internal/store"
)

const dateLayout = "02 Jan 2006"

func welcomeText(name string, price, limit int) string {
	return fmt.Sprintf(`🚀 <b>Welcome to API Reseller Bot, %s!</b>

✨ Get instant access to premium APIs with real-time usage
monitoring and reseller commissions.

<b>💰 Pricing:</b>
₹%d/month | %d requests

Choose an option below to get started:`, name, price, limit)
}

func keyIssuedText(keyID string, key store.Key) string {
	return fmt.Sprintf(`✅ <b>API Key Generated Successfully!</b>

🔑 <b>Your API Key:</b>
<code>%s</code>

📊 <b>Plan Details:</b>
• Type: %s
• Limit: %d requests/month
• Expiry: %s
• Status: Active ✅

⚠️ Keep your API key secure and never share it publicly.`,
		keyID, strings.ToUpper(key.Type), key.Limit, key.Expiry.Format(dateLayout))
}

func dashboardText(v registry.DashboardView) string {
	keyPreview := v.KeyID
	if len(keyPreview) > 25 {
		keyPreview = keyPreview[:25] + "..."
	}
	return fmt.Sprintf(`📊 <b>Your Dashboard</b>

👤 <b>Account:</b>
• Name: %s
• User ID: <code>%s</code>
• Status: %s

🔑 <b>API Details:</b>
• Key: <code>%s</code>
• Type: %s
• Key Status: %s

📈 <b>Usage:</b>
%s %.1f%%
• Used: %d requests
• Limit: %d requests
• Remaining: %d requests

⏰ <b>Subscription:</b>
• Expiry: %s
• Days Left: %d days`,
		v.Name, v.TelegramID, strings.ToUpper(v.UserStatus),
		keyPreview, strings.ToUpper(v.KeyType), strings.ToUpper(v.KeyStatus),
		v.ProgressBar(), v.UsagePercent,
		v.Requests, v.Limit, v.Remaining,
		v.Expiry.Format(dateLayout), v.DaysLeft)
}

func resellerText(r store.Reseller, price int) string {
	return fmt.Sprintf(`🎉 <b>Welcome to the Reseller Program!</b>

🆔 <b>Your Reseller Details:</b>
• ID: <code>%s</code>
• Commission: %d%%
• Status: %s ✅

💰 <b>Earnings:</b>
• Total Sales: %d
• Total Earnings: ₹%d

🔗 <b>Referral Code:</b> <code>%s</code>
Share it and earn ₹%d per sale, credited straight to your wallet.`,
		r.ID, r.Commission, strings.ToUpper(r.Status),
		r.Sales, r.Earnings,
		r.ReferralCode, price*r.Commission/100)
}

func walletText(balance int) string {
	return fmt.Sprintf(`💰 <b>Your Wallet</b>

💵 <b>Balance:</b> ₹%d

🏦 Minimum withdrawal: ₹500, processed in 1-2 business days.
Contact admin to withdraw funds.`, balance)
}

func usageText(v registry.DashboardView, s analytics.Summary) string {
	alert := "• No alerts"
	if v.Limit > 0 && float64(v.Requests)/float64(v.Limit) > 0.8 {
		alert = "• 80% limit reached"
	}
	return fmt.Sprintf(`📈 <b>Detailed Usage Analytics</b>

📊 <b>Current Period:</b>
• Total Requests: %d
• Successful: %d

🕐 <b>Time Breakdown:</b>
• Today: %d requests
• This Week: %d requests
• This Month: %d requests

⚠️ <b>Alerts:</b>
%s`, s.Total, s.Success, s.Today, s.ThisWeek, v.Requests, alert)
}

func helpText() string {
	return `ℹ️ <b>Help & Support Center</b>

<b>📱 Available Commands:</b>
/start - Main menu

<b>🔧 Common Issues:</b>
• API not working? Check expiry on your dashboard
• Limit reached? Contact admin to renew

<b>💬 Contact Support:</b>
• Telegram: @YourSupport
• Response Time: 24 hours`
}

func noKeyText() string {
	return "⚠️ <b>No API key found!</b>\n\nPlease generate an API key first using the main menu."
}

func joinText(channel string) string {
	return fmt.Sprintf(`🔒 <b>Subscription Required</b>

To use this feature, please join our channel first:
%s

Join and tap the button below to continue.`, channel)
}
