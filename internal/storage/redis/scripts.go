package redis

const (
	// commitSessionScript stores a session record once and folds it into the
	// daily aggregate. Returns 1 when the record was created, 0 if it existed.
	commitSessionScript = `
local session_key = KEYS[1]   -- gravityease:session:{id}
local day_index = KEYS[2]     -- gravityease:sessions:{user}:{date}
local daily_key = KEYS[3]     -- gravityease:daily:{user}:{date}
local days_key = KEYS[4]      -- gravityease:days:{user}
local users_key = KEYS[5]     -- gravityease:users

local id = ARGV[1]
local user_id = ARGV[2]
local angle = ARGV[3]
local duration = tonumber(ARGV[4])
local session_date = ARGV[5]
local session_time = ARGV[6]
local started_at = ARGV[7]
local ended_at = ARGV[8]
local start_score = ARGV[9]
local date_score = ARGV[10]
local weighted = ARGV[11]

if redis.call('EXISTS', session_key) == 1 then
  return 0
end

redis.call('HSET', session_key,
  'id', id,
  'user_id', user_id,
  'angle', angle,
  'duration_seconds', duration,
  'session_date', session_date,
  'session_time', session_time,
  'started_at', started_at,
  'ended_at', ended_at
)
redis.call('ZADD', day_index, start_score, id)

if redis.call('EXISTS', daily_key) == 0 then
  redis.call('HSET', daily_key,
    'date', session_date,
    'user_id', user_id,
    'total_duration_seconds', 0,
    'session_count', 0,
    'weighted_angle_sum', 0
  )
end
redis.call('HINCRBY', daily_key, 'total_duration_seconds', duration)
redis.call('HINCRBY', daily_key, 'session_count', 1)
redis.call('HINCRBYFLOAT', daily_key, 'weighted_angle_sum', weighted)

redis.call('ZADD', days_key, date_score, session_date)
redis.call('SADD', users_key, user_id)

return 1
`
)
