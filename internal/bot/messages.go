package bot

const startMessage = `Greetings!
I will send you monitoring events.

Before we begin, let's make initial settings:
🔻 Set up your time zone with /timezone Area/City
🔻 Subscribe to triggers with /subscribe

For a functional description use /help`

const helpMessage = `Emoji to problem severity:
ℹ - info
😐 - warning
🔥 - average
👹 - high
💀 - disaster
✅ - problem resolved.

Commands:
/problems - current open problems
/subscribe - subscribe to all triggers
/unsubscribe - reset all subscriptions
/timezone - time zone setting`
