package telegram

const (
	msgTryLater      = "⚠️ Something went wrong on our side. Please try again later."
	msgInvalidInput  = "❌ Invalid input, please try again or /cancel."
	msgForbidden     = "⛔ You are not allowed to do that."
	msgUnknown       = "🤔 I did not understand that. Pick an action from the menu."
	msgRegisterFirst = "Please choose a role first: /start"
	msgCancelled     = "Cancelled."
	msgMenu          = "Main menu:"

	msgRolePrompt     = "👋 Welcome! Choose your role: User, Admin or Moderator."
	msgPasscodePrompt = "🔑 Enter the passcode for the %s role:"
	msgBadPasscode    = "❌ Invalid passcode, try again or /cancel."
	msgRoleLocked     = "⛔ The %s role is not available. Choose another role."
	msgBadRole        = "❌ Unknown role. Choose User, Admin or Moderator."
	msgRoleAssigned   = "✅ You are registered as %s."

	msgProductCreatePrompt = "Send the new product as:\nname,category,price,quantity"
	msgProductUpdatePrompt = "Send the product update as:\nid,name,category,price,quantity"
	msgProductDeletePrompt = "Send the id of the product to delete:"
	msgOrderCreatePrompt   = "Send your order as:\nproduct_id,quantity"
	msgOrderDeletePrompt   = "Send the id of the order to delete:"

	msgProductNotFound = "❌ Product %d not found. Try again or /cancel."
	msgOrderNotFound   = "❌ Order %d not found. Try again or /cancel."

	msgHelp = `Commands:
/start - register or show the menu
/menu - show the menu
/role - choose a different role
/info - show your account
/cancel - abort the current input
/stats - today's statistics (Admin)
/help - this message`
)
